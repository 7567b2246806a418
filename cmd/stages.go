package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/judgment-cli/internal/model"
)

// stageCommand builds a command that runs a fixed set of stages at its own
// default concurrency.
func stageCommand(use, short string, stages []model.Stage, concurrency int, dedupe bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			n, _ := cmd.Flags().GetInt("concurrency")
			params := jobParams{
				Input:       input,
				Output:      output,
				Stages:      stages,
				Concurrency: n,
				Dedupe:      dedupe,
			}
			if f := cmd.Flags().Lookup("only-judgments"); f != nil {
				params.OnlyJudgments, _ = cmd.Flags().GetBool("only-judgments")
			}
			return runStages(cmd, params)
		},
	}
	addIOFlags(cmd)
	cmd.Flags().Int("concurrency", concurrency, "records in flight")
	return cmd
}

var (
	partiesCmd = stageCommand("parties", "Extract judges and party names, then drop duplicate parties",
		[]model.Stage{model.StageJudges, model.StageParties}, 1, true)
	classifyCmd = stageCommand("classify", "Classify documents as Order, Judgment or Oral Judgment",
		[]model.Stage{model.StageClassification}, 2, false)
	summarizeCmd = stageCommand("summarize", "Fetch summaries and rephrase them",
		[]model.Stage{model.StageSummary, model.StageRephrase}, 2, false)
	scoreCmd = stageCommand("score", "Score novelty and area of law from existing summaries",
		[]model.Stage{model.StageNovelty}, 5, false)
)

func init() {
	classifyCmd.Flags().Bool("only-judgments", false, "keep only records classified as Judgment")

	rootCmd.AddCommand(partiesCmd, classifyCmd, summarizeCmd, scoreCmd)
}
