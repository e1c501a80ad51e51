package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List receipts that need review",
		Long: `List saved receipts flagged for review, newest first, with their review
reasons and the items whose category needs a second look.`,
		Args: cobra.NoArgs,
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
			return runReview(cmd.Context(), cmd.OutOrStdout(), db, viper.GetInt("review.limit"))
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum receipts to list")
	_ = viper.BindPFlag("review.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show spend by category",
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
			return runReport(cmd.Context(), cmd.OutOrStdout(), db)
		},
	}
}

func runReview(ctx context.Context, out io.Writer, db service.ReceiptStore, limit int) error {
	receipts, err := db.ListReceiptsNeedingReview(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list receipts: %w", err)
	}
	return cli.RenderReview(out, receipts)
}

func runReport(ctx context.Context, out io.Writer, db service.ReceiptStore) error {
	totals, err := db.CategoryTotals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category totals: %w", err)
	}
	if len(totals) == 0 {
		_, err = fmt.Fprintln(out, cli.FormatInfo("No receipts recorded yet"))
		return err
	}
	return cli.RenderCategoryTotals(out, totals)
}
