package cmd

import (
	"fmt"
	"os"

	"github.com/pubkey/storagebench/cmd/bench"
	"github.com/pubkey/storagebench/cmd/util"
	"github.com/pubkey/storagebench/cmd/worker"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "storagebench",
		Short: "storage backend benchmark",
		Long: fmt.Sprintf(`storagebench (v%s)

Compares write, read and query latency of several persistence backends behind
one adapter contract. Backends run in process, in a worker goroutine, in a
worker child process or behind a worker server.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of storagebench",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("storagebench v%s\n", Version)
		},
	}
)

func init() {
	// load .env files and STORAGEBENCH_* variables
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(worker.WorkerCmd)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer between worker proxy and worker (binary, json, gob)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
