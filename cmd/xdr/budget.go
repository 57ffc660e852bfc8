package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func budgetCmd() *cobra.Command {
	var addr, agent string
	var set float64

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Set an agent's budget on a running XDR instance",
		Run: func(cmd *cobra.Command, args []string) {
			if agent == "" {
				fmt.Fprintln(os.Stderr, "budget: --agent is required")
				os.Exit(1)
			}

			body := fmt.Sprintf(`{"amount":%v}`, set)
			resp, err := adminRequest("POST", addr, "/_xdr/budget/"+agent, strings.NewReader(body))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:4002", "XDR instance base URL")
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().Float64Var(&set, "set", 0, "new budget amount, in USDC")

	return cmd
}
