package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func chaosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Configure the chaos engine on a running XDR instance",
	}

	cmd.AddCommand(chaosEnableCmd())
	cmd.AddCommand(chaosDisableCmd())

	return cmd
}

func chaosEnableCmd() *cobra.Command {
	var addr string
	var seed, minLatency, maxLatency uint64
	var failureRate, rugRate float64

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable chaos injection with the given parameters",
		Run: func(cmd *cobra.Command, args []string) {
			body := fmt.Sprintf(
				`{"enabled":true,"seed":%d,"failure_rate":%v,"min_latency_ms":%d,"max_latency_ms":%d,"rug_rate":%v}`,
				seed, failureRate, minLatency, maxLatency, rugRate,
			)
			resp, err := adminRequest("POST", addr, "/_xdr/chaos", strings.NewReader(body))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:4002", "XDR instance base URL")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "deterministic chaos seed")
	cmd.Flags().Float64Var(&failureRate, "failure-rate", 0, "pre-payment failure rate, 0-1")
	cmd.Flags().Uint64Var(&minLatency, "min-latency", 0, "minimum injected latency in ms")
	cmd.Flags().Uint64Var(&maxLatency, "max-latency", 0, "maximum injected latency in ms")
	cmd.Flags().Float64Var(&rugRate, "rug-rate", 0, "post-payment failure (rug pull) rate, 0-1")

	return cmd
}

func chaosDisableCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable chaos injection",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := adminRequest("POST", addr, "/_xdr/chaos", strings.NewReader(`{"enabled":false}`))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:4002", "XDR instance base URL")

	return cmd
}
