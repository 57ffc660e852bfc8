package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func logsCmd() *cobra.Command {
	var addr, agent string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent request traces from a running XDR instance",
		Run: func(cmd *cobra.Command, args []string) {
			path := "/_xdr/logs"
			if agent != "" {
				path += "?agent=" + agent
			}

			resp, err := adminRequest("GET", addr, path, nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			entries, _ := resp["entries"].([]interface{})
			if asJSON {
				for _, e := range entries {
					out, err := json.Marshal(e)
					if err != nil {
						continue
					}
					fmt.Println(string(out))
				}
				return
			}

			for _, e := range entries {
				entry, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				fmt.Printf("%v %-6v %-4v %v -> %v (%vms)\n",
					entry["timestamp"], entry["method"], entry["status_code"], entry["agent_id"], entry["path"], entry["duration_ms"])
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:4002", "XDR instance base URL")
	cmd.Flags().StringVar(&agent, "agent", "", "filter by agent id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON-lines instead of a human table")

	return cmd
}
