package main

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/xdr-run/xdr/internal/config"
	"github.com/xdr-run/xdr/internal/logging"
	"github.com/xdr-run/xdr/internal/server"
)

func runCmd() *cobra.Command {
	var network, port, bind string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the XDR proxy in the foreground",
		Run: func(cmd *cobra.Command, args []string) {
			if network != "" {
				os.Setenv("XDR_NETWORK", network)
			}
			if port != "" {
				os.Setenv("XDR_PORT", port)
			}
			if bind != "" {
				os.Setenv("XDR_BIND", bind)
			}

			logger := logging.New("info", "text")

			cfg, err := config.Load()
			if err != nil {
				logger.Error("failed to load config", "error", err)
				os.Exit(1)
			}

			logger.Info("configuration loaded", "env", cfg.Env, "network", cfg.Network, "chain_id", cfg.ChainID)

			srv, err := server.New(cfg, server.WithLogger(logger))
			if err != nil {
				if isBindError(err) {
					logger.Error("failed to bind", "error", err)
					os.Exit(2)
				}
				logger.Error("failed to create server", "error", err)
				os.Exit(1)
			}

			if err := srv.Run(context.Background()); err != nil {
				if isBindError(err) {
					logger.Error("bind failure", "error", err)
					os.Exit(2)
				}
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "cronos-testnet or cronos-mainnet")
	cmd.Flags().StringVar(&port, "port", "", "listen port")
	cmd.Flags().StringVar(&bind, "bind", "", "bind address")

	return cmd
}

func isBindError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
