package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type processOptions struct {
	Interrupts  *cli.InterruptHandler
	Vendor      string
	ExportPath  string
	MetricsPath string
	Stats       bool
	Verbose     bool
	DryRun      bool
	Progress    bool
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Extract and categorize receipt documents",
		Long: `Read vendor documents (CSV, TSV, XLSX or plain text), extract their line
items with the configured layouts and categorize every item.

Vendors are detected from file names and content unless --vendor is given.
Processed receipts are saved to the receipt database.

Examples:
  receipts process costco_2024_06.xlsx
  receipts process --vendor RESTAURANT_DEPOT invoices/*.txt
  receipts process --stats --export items.csv exports/*.csv
  receipts process --dry-run --verbose order.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("process.no_cache") {
				cfg.Cache.Enabled = false
			}
			if viper.GetBool("process.no_bulk") {
				cfg.Extraction.Bulk = false
			}

			opts := processOptions{
				Vendor:      viper.GetString("process.vendor"),
				ExportPath:  viper.GetString("process.export"),
				MetricsPath: viper.GetString("process.metrics_file"),
				Stats:       viper.GetBool("process.stats"),
				Verbose:     viper.GetBool("process.verbose"),
				DryRun:      viper.GetBool("process.dry_run"),
				Progress:    !viper.GetBool("process.quiet"),
			}

			opts.Interrupts = cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := opts.Interrupts.HandleInterrupts(cmd.Context(), !opts.DryRun)
			defer opts.Interrupts.Stop()
			return runProcess(ctx, cmd.OutOrStdout(), cfg, opts, args)
		},
	}

	// Flags
	cmd.Flags().String("vendor", "", "Vendor code for every document (skips detection)")
	cmd.Flags().IntP("workers", "w", 0, "Documents processed concurrently")
	cmd.Flags().Bool("hot-reload", false, "Re-read rule documents when they change")
	cmd.Flags().Bool("no-cache", false, "Disable the column-mapping cache")
	cmd.Flags().Bool("no-bulk", false, "Extract tables row by row")
	cmd.Flags().Bool("stats", false, "Show column-mapping cache statistics")
	cmd.Flags().String("export", "", "Write categorized items to this CSV file")
	cmd.Flags().String("metrics-file", "", "Write processing metrics in Prometheus text format")
	cmd.Flags().BoolP("verbose", "v", false, "Show every line item")
	cmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	cmd.Flags().Bool("dry-run", false, "Process without saving receipts")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("process.vendor", cmd.Flags().Lookup("vendor"))
	_ = viper.BindPFlag("engine.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("rules.hot_reload", cmd.Flags().Lookup("hot-reload"))
	_ = viper.BindPFlag("process.no_cache", cmd.Flags().Lookup("no-cache"))
	_ = viper.BindPFlag("process.no_bulk", cmd.Flags().Lookup("no-bulk"))
	_ = viper.BindPFlag("process.stats", cmd.Flags().Lookup("stats"))
	_ = viper.BindPFlag("process.export", cmd.Flags().Lookup("export"))
	_ = viper.BindPFlag("process.metrics_file", cmd.Flags().Lookup("metrics-file"))
	_ = viper.BindPFlag("process.verbose", cmd.Flags().Lookup("verbose"))
	_ = viper.BindPFlag("process.quiet", cmd.Flags().Lookup("quiet"))
	_ = viper.BindPFlag("process.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runProcess(ctx context.Context, out io.Writer, cfg *config.Config, opts processOptions, files []string) error {
	store, err := openRules(cfg)
	if err != nil {
		return err
	}
	defer closeRules(store)

	reg := prometheus.NewRegistry()
	eng, err := engine.New(store, engine.ConfigFrom(cfg), engine.WithRegisterer(reg))
	if err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}

	detection, err := store.VendorDetection()
	if err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}
	detector, err := source.NewDetector(detection)
	if err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}

	docs := make([]*engine.Document, 0, len(files))
	for _, path := range files {
		doc, readErr := source.ReadFile(path)
		if readErr != nil {
			slog.Warn("Skipping unreadable document", "file", path, "error", readErr)
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", filepath.Base(path), readErr)))
			continue
		}
		if opts.Vendor != "" {
			doc.VendorCode = opts.Vendor
		}
		if !detector.Apply(doc) && doc.VendorCode == "" {
			slog.Debug("No vendor detected", "file", path)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return common.NewUserError("no readable documents", nil)
	}

	var db service.ReceiptStore
	if !opts.DryRun {
		sqlite, openErr := openStorage(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer closeStorage(sqlite)
		db = sqlite
	}

	var bar *progressbar.ProgressBar
	if opts.Progress && len(docs) > 1 {
		bar = cli.NewProgressBar(out, len(docs))
	}
	if opts.Interrupts != nil {
		opts.Interrupts.Track(len(docs))
	}
	onDone := func(engine.Outcome) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if opts.Interrupts != nil {
			opts.Interrupts.Done()
		}
	}

	start := time.Now()
	outcomes, batchErr := eng.ProcessBatch(ctx, docs, onDone)
	if batchErr != nil && common.IsConfigError(batchErr) {
		return common.NewUserError("rule documents are invalid", batchErr)
	}

	// Finished receipts are kept even when the batch was interrupted.
	saveCtx := context.WithoutCancel(ctx)
	receipts := make([]*model.Receipt, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			if !errors.Is(o.Err, context.Canceled) {
				fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", filepath.Base(o.Source), o.Err)))
			}
			continue
		}
		if o.Receipt == nil {
			continue
		}
		receipts = append(receipts, o.Receipt)

		if db != nil {
			if saveErr := db.SaveReceipt(saveCtx, o.Receipt); saveErr != nil {
				if errors.Is(saveErr, common.ErrDuplicateEntry) {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s: already recorded", filepath.Base(o.Source))))
					continue
				}
				return fmt.Errorf("failed to save receipt for %s: %w", o.Source, saveErr)
			}
		}
		if renderErr := cli.RenderReceipt(out, o.Receipt, opts.Verbose); renderErr != nil {
			return renderErr
		}
	}

	slog.Info("Batch finished", "documents", len(docs), "receipts", len(receipts), "duration", time.Since(start))
	if err := cli.RenderBatchSummary(out, outcomes, eng.CacheStats(), opts.Stats); err != nil {
		return err
	}

	if opts.ExportPath != "" {
		if err := exportItems(opts.ExportPath, receipts); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Exported items to %s", opts.ExportPath)))
	}
	if opts.MetricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsPath, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if opts.Interrupts != nil && opts.Interrupts.WasInterrupted() {
		return nil
	}
	return batchErr
}

func exportItems(path string, receipts []*model.Receipt) (err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close export file: %w", closeErr)
		}
	}()
	return cli.ExportItemsCSV(f, receipts)
}
