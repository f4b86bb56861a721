package main

import "github.com/pubkey/storagebench/cmd"

func main() {
	cmd.Execute()
}
