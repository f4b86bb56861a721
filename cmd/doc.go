// Package cmd implements the command-line interface of storagebench.
//
// The package is organized into several subpackages:
//
//   - bench: Runs the workload against the selected backends and prints the timings
//   - worker: Hosts one backend behind the worker protocol (stdio, unix or tcp)
//   - util: Backend registry and shared configuration helpers (internal use)
//
// See storagebench -help for a list of all commands.
package cmd
