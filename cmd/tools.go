package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/pipeline"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Drop records whose party name was already seen",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = input
		}

		rio, err := initRecordIO(ctx)
		if err != nil {
			return err
		}
		records, err := rio.Read(ctx, input)
		if err != nil {
			return err
		}
		kept, dropped := pipeline.Dedupe(records)
		if err := rio.Write(ctx, output, kept); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d records, dropped %d duplicates\n", len(kept), len(records), dropped) //nolint:errcheck
		return nil
	},
}

var fixlinksCmd = &cobra.Command{
	Use:   "fixlinks",
	Short: "Repair malformed document links",
	Long: "Inserts the missing '/' after configured hosts (links.host_fixes) and " +
		"resolves relative links against links.base_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = input
		}
		baseURL, _ := cmd.Flags().GetString("base-url")
		if baseURL == "" {
			baseURL = cfg.Links.BaseURL
		}

		rio, err := initRecordIO(ctx)
		if err != nil {
			return err
		}
		records, err := rio.Read(ctx, input)
		if err != nil {
			return err
		}

		fixer := pipeline.LinkFixer{HostFixes: cfg.Links.HostFixes, BaseURL: baseURL}
		fixed := fixer.FixLinks(records)
		if err := rio.Write(ctx, output, records); err != nil {
			return err
		}

		zap.L().Info("fixlinks: done", zap.Int("fixed", fixed), zap.Int("records", len(records)))
		fmt.Fprintf(cmd.OutOrStdout(), "fixed %d of %d links\n", fixed, len(records)) //nolint:errcheck
		return nil
	},
}

func init() {
	addIOFlags(dedupeCmd)
	addIOFlags(fixlinksCmd)
	fixlinksCmd.Flags().String("base-url", "", "base URL for relative links (default links.base_url)")

	rootCmd.AddCommand(dedupeCmd, fixlinksCmd)
}
