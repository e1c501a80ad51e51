package main

import (
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the receipt database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStorage(db)

			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Database %s is at schema version %d", db.Path(), version)))
			return nil
		},
	}
}
