package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var addr, agent string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show an agent's ledger status on a running XDR instance",
		Run: func(cmd *cobra.Command, args []string) {
			if agent == "" {
				fmt.Fprintln(os.Stderr, "status: --agent is required")
				os.Exit(1)
			}

			resp, err := adminRequest("GET", addr, "/_xdr/status/"+agent, nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:4002", "XDR instance base URL")
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")

	return cmd
}
