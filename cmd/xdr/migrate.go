package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

const migrationsDir = "migrations"

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "migrate [up|down|status|version|redo]",
		Short:              "Run ledger schema migrations against XDR_DATABASE_URL",
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL := os.Getenv("XDR_DATABASE_URL")
			if dbURL == "" {
				return fmt.Errorf("migrate: XDR_DATABASE_URL is required")
			}

			db, err := sql.Open("postgres", dbURL)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := db.Ping(); err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}

			command := args[0]
			return goose.RunContext(context.Background(), command, db, migrationsDir, args[1:]...)
		},
	}

	return cmd
}
