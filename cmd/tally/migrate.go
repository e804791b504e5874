package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required tables and
indexes for the engine to function properly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			slog.Info("Database schema is current")
			return nil
		},
	}
}
