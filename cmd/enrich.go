package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/pipeline"
	"github.com/sells-group/judgment-cli/internal/recordio"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/internal/store"
)

// jobParams describes one batch over a record file.
type jobParams struct {
	Input         string
	Output        string
	Stages        []model.Stage
	Concurrency   int
	Dedupe        bool
	OnlyJudgments bool
}

// jobRunner reads, enriches and writes one record file, recording the run
// when a store is configured.
type jobRunner struct {
	io    *recordio.IO
	store store.Store

	// onProgress, when set, receives every batch progress event.
	onProgress func(pipeline.Progress)
}

// jobResult is what a finished job reports.
type jobResult struct {
	RunID       string
	Stats       model.BatchStats
	Written     int
	DeadLetters int
}

func (j *jobRunner) run(ctx context.Context, params jobParams, enrich pipeline.EnrichFunc) (*jobResult, error) {
	if params.Output == "" {
		params.Output = params.Input
	}
	records, err := j.io.Read(ctx, params.Input)
	if err != nil {
		return nil, err
	}

	res := &jobResult{}
	if j.store != nil {
		run, err := j.store.CreateRun(ctx, params.Input, params.Stages)
		if err != nil {
			return nil, eris.Wrap(err, "create run")
		}
		res.RunID = run.ID
		if err := j.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			return nil, eris.Wrap(err, "mark run running")
		}
	}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("input", params.Input))
	log.Info("job: starting",
		zap.Int("records", len(records)),
		zap.Strings("stages", stageNames(params.Stages)),
		zap.Int("concurrency", params.Concurrency),
	)

	batch := pipeline.RunBatch(ctx, records, pipeline.BatchOptions{
		Concurrency: params.Concurrency,
		OnProgress:  j.onProgress,
	}, enrich)
	res.Stats = batch.Stats

	out := batch.Records
	if params.OnlyJudgments {
		out = pipeline.FilterByClassification(out, model.ClassificationJudgment)
		log.Info("job: kept judgments only", zap.Int("judgments", len(out)), zap.Int("total", len(batch.Records)))
	}
	if params.Dedupe {
		var dropped int
		out, dropped = pipeline.Dedupe(out)
		res.Stats.Dropped = dropped
	}

	// Results are written and recorded even when ctx is done so an
	// interrupted run keeps what it finished.
	bg := context.WithoutCancel(ctx)
	writeErr := j.io.Write(bg, params.Output, out)
	if writeErr == nil {
		res.Written = len(out)
	}

	if j.store != nil {
		res.DeadLetters = j.persist(bg, res.RunID, out, batch.Failures)
		runErr := writeErr
		if runErr == nil {
			runErr = ctx.Err()
		}
		if err := j.store.CompleteRun(bg, res.RunID, store.RunResult{
			Output: params.Output,
			Stats:  res.Stats,
			Err:    runErr,
		}); err != nil {
			log.Error("job: complete run failed", zap.Error(err))
		}
	}

	if writeErr != nil {
		return res, writeErr
	}
	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "job interrupted")
	}
	log.Info("job: finished",
		zap.String("output", params.Output),
		zap.Int("written", res.Written),
		zap.Int("failed", res.Stats.Failed),
		zap.Int("dead_letters", res.DeadLetters),
	)
	return res, nil
}

// persist saves the run's records and dead letters. Store errors are
// logged since the output file is already written.
func (j *jobRunner) persist(ctx context.Context, runID string, records []model.CaseRecord, failures []pipeline.Failure) int {
	log := zap.L().With(zap.String("run_id", runID))

	if err := j.store.SaveRecords(ctx, runID, records); err != nil {
		log.Error("job: save records failed", zap.Error(err))
	}

	letters := make([]resilience.DeadLetter, 0, len(failures))
	for _, f := range failures {
		if dl := resilience.NewDeadLetter(runID, f.Record, f.Err); dl != nil {
			letters = append(letters, *dl)
		}
	}
	if len(letters) == 0 {
		return 0
	}
	if err := j.store.EnqueueDeadLetters(ctx, letters); err != nil {
		log.Error("job: enqueue dead letters failed", zap.Error(err))
		return 0
	}
	return len(letters)
}

// runStages is the shared body of enrich and the single-stage commands.
func runStages(cmd *cobra.Command, params jobParams) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if params.Concurrency <= 0 {
		params.Concurrency = cfg.Batch.Concurrency
	}

	env, err := initEnv(ctx, params.Stages)
	if err != nil {
		return err
	}
	defer env.Close()

	runner := &jobRunner{io: env.IO, store: env.Store}
	res, err := runner.run(ctx, params, env.Pipeline.Enrich)
	if res != nil {
		printJobResult(cmd, res)
	}
	return err
}

func printJobResult(cmd *cobra.Command, res *jobResult) {
	s := res.Stats
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "processed %d, skipped %d, failed %d of %d records", s.Processed, s.Skipped, s.Failed, s.Total) //nolint:errcheck
	if s.Dropped > 0 {
		fmt.Fprintf(w, ", dropped %d duplicates", s.Dropped) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck
	if res.RunID != "" {
		fmt.Fprintf(w, "run %s", res.RunID) //nolint:errcheck
		if res.DeadLetters > 0 {
			fmt.Fprintf(w, " (%d dead letters, see: judgment-cli runs show %s --failed)", res.DeadLetters, res.RunID) //nolint:errcheck
		}
		fmt.Fprintln(w) //nolint:errcheck
	}
}

// parseStageFlag parses a comma-separated stage list.
func parseStageFlag(v string) ([]model.Stage, error) {
	stages, ok := model.ParseStages(strings.Split(v, ","))
	if !ok || len(stages) == 0 {
		return nil, eris.Errorf("invalid --stages %q (valid: all, %s)", v, strings.Join(stageNames(model.AllStages()), ", "))
	}
	return stages, nil
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run enrichment stages over a record file",
	Long: "Reads a JSON array (or .xlsx sheet) of judgment records, runs the selected " +
		"stages on every record with a valid document link, and writes the records back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stagesFlag, _ := cmd.Flags().GetString("stages")
		stages, err := parseStageFlag(stagesFlag)
		if err != nil {
			return err
		}
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		dedupe, _ := cmd.Flags().GetBool("dedupe")

		return runStages(cmd, jobParams{
			Input:       input,
			Output:      output,
			Stages:      stages,
			Concurrency: concurrency,
			Dedupe:      dedupe,
		})
	},
}

func addIOFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "input records (path or s3://bucket/key)")
	cmd.Flags().StringP("output", "o", "", "output records (default: overwrite input)")
	_ = cmd.MarkFlagRequired("input")
}

func init() {
	addIOFlags(enrichCmd)
	enrichCmd.Flags().String("stages", "all", "comma-separated stages: parties, judges, classification, summary, rephrase, novelty")
	enrichCmd.Flags().Int("concurrency", 0, "records in flight (default from config)")
	enrichCmd.Flags().Bool("dedupe", false, "drop duplicate party names after enrichment")
	rootCmd.AddCommand(enrichCmd)
}
