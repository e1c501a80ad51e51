package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/Veraticus/the-receipts-must-flow/internal/source"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate every rule document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runRulesValidate(cmd.OutOrStdout(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "layouts [vendor]",
		Short: "List layouts in resolution order",
		Long: `List the layouts configured for a vendor in the order the resolver tries
them. Without a vendor, every vendor in shared.yaml is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			vendor := ""
			if len(args) == 1 {
				vendor = args[0]
			}
			return runRulesLayouts(cmd.OutOrStdout(), cfg, vendor)
		},
	})

	return cmd
}

func runRulesValidate(out io.Writer, cfg *config.Config) error {
	store, err := openRules(cfg)
	if err != nil {
		return err
	}
	defer closeRules(store)

	// Building an engine compiles the classification pipeline as well.
	if _, err := engine.New(store, engine.ConfigFrom(cfg)); err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}
	detection, err := store.VendorDetection()
	if err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}
	if _, err := source.NewDetector(detection); err != nil {
		return common.NewUserError("rule documents are invalid", err)
	}

	_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule documents in %s are valid", cfg.Rules.Dir)))
	return err
}

func runRulesLayouts(out io.Writer, cfg *config.Config, vendor string) error {
	store, err := openRules(cfg)
	if err != nil {
		return err
	}
	defer closeRules(store)

	vendors := []string{vendor}
	if vendor == "" {
		shared, sharedErr := store.Shared()
		if sharedErr != nil {
			return common.NewUserError("rule documents are invalid", sharedErr)
		}
		vendors = vendors[:0]
		for code := range shared.LayoutFiles {
			vendors = append(vendors, code)
		}
		sort.Strings(vendors)
	}

	for _, v := range vendors {
		layouts, layoutErr := store.Layouts(v)
		if layoutErr != nil {
			return common.NewUserError("rule documents are invalid", layoutErr)
		}
		if err := cli.RenderLayouts(out, v, layouts); err != nil {
			return err
		}
	}
	return nil
}
