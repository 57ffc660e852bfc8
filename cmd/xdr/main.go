// Command xdr is the CLI for running and operating an XDR proxy: starting
// the server, and driving its admin control plane (budget, chaos, logs,
// status) against a running instance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build info, set by ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:     "xdr",
		Short:   "XDR - a local-first x402 proxy simulator for AI agent clients",
		Version: Version,
	}

	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(budgetCmd())
	root.AddCommand(chaosCmd())
	root.AddCommand(logsCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
