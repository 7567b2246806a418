// Package pipeline enriches judgment records: it fetches each record's
// document, runs the configured extraction stages, merges their results,
// and drives whole batches under a concurrency cap.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/judgment-cli/internal/config"
	"github.com/sells-group/judgment-cli/internal/extract"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/pkg/summarizer"
)

// ErrNoDocument is returned for records without a usable document link.
// The record is left untouched.
var ErrNoDocument = errors.New("pipeline: record has no valid document link")

// DocumentSource materializes the leading pages of a document.
type DocumentSource interface {
	Fetch(ctx context.Context, url string, mode model.PageMode, maxPages int) ([]model.PageContent, error)
}

// Tasks holds the extraction tasks with their configured retry policies.
type Tasks struct {
	Judges         extract.Task
	Parties        extract.Task
	Classification extract.Task
	Rephrase       extract.Task
	Novelty        extract.Task
}

// DefaultTasks returns the built-in tasks.
func DefaultTasks() Tasks {
	return Tasks{
		Judges:         extract.Judges,
		Parties:        extract.Parties,
		Classification: extract.Classification,
		Rephrase:       extract.Rephrase,
		Novelty:        extract.Novelty,
	}
}

// Options configures a Pipeline.
type Options struct {
	Stages        []model.Stage
	TextMaxPages  int
	ImageMaxPages int
	Tasks         Tasks
	// SummaryRetry wraps the summary service call.
	SummaryRetry resilience.Policy
}

// OptionsFromConfig builds Options for stages from cfg.
func OptionsFromConfig(cfg *config.Config, stages []model.Stage) Options {
	return Options{
		Stages:        stages,
		TextMaxPages:  cfg.Fetch.TextMaxPages,
		ImageMaxPages: cfg.Fetch.ImageMaxPages,
		Tasks: Tasks{
			Judges:         extract.Judges.WithRetry(cfg.Retry.Judges.Policy()),
			Parties:        extract.Parties.WithRetry(cfg.Retry.Parties.Policy()),
			Classification: extract.Classification.WithRetry(cfg.Retry.Classification.Policy()),
			Rephrase:       extract.Rephrase.WithRetry(cfg.Retry.Rephrase.Policy()),
			Novelty:        extract.Novelty.WithRetry(cfg.Retry.Novelty.Policy()),
		},
		SummaryRetry: cfg.Retry.Summary.Policy(),
	}
}

// Pipeline enriches one record at a time. It is safe for concurrent use
// across distinct records.
type Pipeline struct {
	docs      DocumentSource
	extractor *extract.Extractor
	summary   summarizer.Client
	opts      Options
	enabled   map[model.Stage]bool
}

// New creates a Pipeline. summary may be nil when the summary stage is not
// enabled.
func New(docs DocumentSource, ext *extract.Extractor, summary summarizer.Client, opts Options) *Pipeline {
	if opts.TextMaxPages <= 0 {
		opts.TextMaxPages = 10
	}
	if opts.ImageMaxPages <= 0 {
		opts.ImageMaxPages = 13
	}
	if opts.Tasks.Judges.Name == "" {
		opts.Tasks = DefaultTasks()
	}
	if opts.SummaryRetry.MaxAttempts <= 0 {
		opts.SummaryRetry = resilience.ExponentialBackoff(3, 4*time.Second, 4*time.Second, 10*time.Second)
	}
	enabled := make(map[model.Stage]bool, len(opts.Stages))
	for _, s := range opts.Stages {
		enabled[s] = true
	}
	return &Pipeline{
		docs:      docs,
		extractor: ext,
		summary:   summary,
		opts:      opts,
		enabled:   enabled,
	}
}

// Stages returns the enabled stages.
func (p *Pipeline) Stages() []model.Stage { return p.opts.Stages }

// StageStatus is the outcome of one stage for one record.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageFailed   StageStatus = "failed"
	StageDegraded StageStatus = "degraded"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records how one stage went.
type StageResult struct {
	Stage    model.Stage
	Status   StageStatus
	Duration time.Duration
	Err      error
}

// Outcome summarizes one record's enrichment.
type Outcome struct {
	Stages []StageResult
}

// Failed reports whether any stage failed or fell back.
func (o *Outcome) Failed() bool {
	if o == nil {
		return false
	}
	for _, s := range o.Stages {
		if s.Status == StageFailed || s.Status == StageDegraded {
			return true
		}
	}
	return false
}

func (o *Outcome) add(r StageResult) {
	o.Stages = append(o.Stages, r)
}

// Enrich runs the enabled stages for rec and merges their results into it.
// Stage failures are recorded on the record and in the Outcome; the only
// error returned is ErrNoDocument or a cancelled context.
func (p *Pipeline) Enrich(ctx context.Context, rec *model.CaseRecord) (*Outcome, error) {
	if !rec.HasDocument() {
		return nil, ErrNoDocument
	}
	log := zap.L().With(zap.String("pdf_link", rec.DocumentLink), zap.String("serial_number", string(rec.SerialNumber)))
	start := time.Now()

	// Phase 1: independent stage groups. Each writes only its own result
	// struct; the record is touched after Wait.
	var (
		text    textResults
		class   classResult
		summary summaryResults
	)
	link := rec.DocumentLink
	existingSummary := model.Deref(rec.Summary)
	if _, stale := rec.EnrichmentErrors[model.StageSummary]; stale {
		existingSummary = ""
	}

	var g errgroup.Group
	if p.enabled[model.StageParties] || p.enabled[model.StageJudges] {
		g.Go(func() error {
			text = p.runTextStages(ctx, link)
			return nil
		})
	}
	if p.enabled[model.StageClassification] {
		g.Go(func() error {
			class = p.runClassification(ctx, link)
			return nil
		})
	}
	if p.enabled[model.StageSummary] || p.enabled[model.StageRephrase] {
		g.Go(func() error {
			summary = p.runSummaryChain(ctx, link, existingSummary)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	text.merge(rec, out)
	class.merge(rec, out)
	summary.merge(rec, out)

	// Phase 2: novelty needs a summary, including a rephrase fallback, but
	// not the placeholder left by a failed summary call in this or an
	// earlier run.
	if p.enabled[model.StageNovelty] {
		_, staleSummary := rec.EnrichmentErrors[model.StageSummary]
		if summary.serviceFailed() || staleSummary || rec.Summary == nil {
			out.add(StageResult{Stage: model.StageNovelty, Status: StageSkipped})
		} else {
			p.runNovelty(ctx, rec).merge(rec, out)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.Duration("took", time.Since(start))}
	for _, s := range out.Stages {
		fields = append(fields, zap.String(string(s.Stage), string(s.Status)))
	}
	if out.Failed() {
		log.Warn("pipeline: record enriched with errors", fields...)
	} else {
		log.Debug("pipeline: record enriched", fields...)
	}
	return out, nil
}

// Err returns the first stage error, or nil.
func (o *Outcome) Err() error {
	if o == nil {
		return nil
	}
	for _, s := range o.Stages {
		if s.Err != nil {
			return eris.Wrapf(s.Err, "stage %s", s.Stage)
		}
	}
	return nil
}
