package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/judgment-cli/internal/export"
	"github.com/sells-group/judgment-cli/pkg/notion"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enriched records to XLSX or Notion",
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Write records as an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		sheet, _ := cmd.Flags().GetString("sheet")
		if output == "" {
			return eris.New("--output is required")
		}

		rio, err := initRecordIO(ctx)
		if err != nil {
			return err
		}
		records, err := rio.Read(ctx, input)
		if err != nil {
			return err
		}
		data, err := export.XLSXBytes(records, sheet)
		if err != nil {
			return err
		}
		if err := rio.WriteBytes(ctx, output, data,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(records), output) //nolint:errcheck
		return nil
	},
}

var exportNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Upsert records into a Notion database keyed by serial number",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetString("input")
		dbID, _ := cmd.Flags().GetString("database")
		if dbID == "" {
			dbID = cfg.Notion.DatabaseID
		}
		if cfg.Notion.Token == "" {
			return eris.New("notion.token is required (JUDGMENT_NOTION_TOKEN)")
		}

		rio, err := initRecordIO(ctx)
		if err != nil {
			return err
		}
		records, err := rio.Read(ctx, input)
		if err != nil {
			return err
		}

		exp := export.NewNotionExporter(notion.NewClient(cfg.Notion.Token), dbID)
		stats, err := exp.Export(ctx, records)
		fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, skipped %d pages\n", //nolint:errcheck
			stats.Created, stats.Updated, stats.Skipped)
		return err
	},
}

func init() {
	exportXLSXCmd.Flags().StringP("input", "i", "", "input records (path or s3://bucket/key)")
	exportXLSXCmd.Flags().StringP("output", "o", "", "workbook path or s3://bucket/key")
	exportXLSXCmd.Flags().String("sheet", export.DefaultSheet, "sheet name")
	_ = exportXLSXCmd.MarkFlagRequired("input")

	exportNotionCmd.Flags().StringP("input", "i", "", "input records (path or s3://bucket/key)")
	exportNotionCmd.Flags().String("database", "", "Notion database ID (default notion.database_id)")
	_ = exportNotionCmd.MarkFlagRequired("input")

	exportCmd.AddCommand(exportXLSXCmd, exportNotionCmd)
	rootCmd.AddCommand(exportCmd)
}
