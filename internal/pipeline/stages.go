package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/judgment-cli/internal/document"
	"github.com/sells-group/judgment-cli/internal/extract"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/prompts"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/pkg/summarizer"
)

// timed runs fn and returns its duration.
func timed(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

// titleCase normalizes judge names for display.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// --- judges and parties ---

type textResults struct {
	ran     bool
	judges  *stageValue[model.JudgesResult]
	parties *stageValue[model.PartiesResult]
}

type stageValue[T any] struct {
	val T
	res StageResult
}

func (p *Pipeline) runTextStages(ctx context.Context, link string) textResults {
	out := textResults{ran: true}

	var pages []model.PageContent
	var fetchErr error
	fetchTook := timed(func() {
		pages, fetchErr = p.docs.Fetch(ctx, link, model.PageModeText, p.opts.TextMaxPages)
	})
	if fetchErr != nil {
		failed := StageResult{Status: StageFailed, Duration: fetchTook, Err: fetchErr}
		if p.enabled[model.StageJudges] {
			out.judges = &stageValue[model.JudgesResult]{res: withStage(failed, model.StageJudges)}
		}
		if p.enabled[model.StageParties] {
			out.parties = &stageValue[model.PartiesResult]{res: withStage(failed, model.StageParties)}
		}
		return out
	}

	in := extract.Input{Data: prompts.Data{Text: document.JoinText(pages)}}

	var g errgroup.Group
	if p.enabled[model.StageJudges] {
		out.judges = &stageValue[model.JudgesResult]{}
		g.Go(func() error {
			runStage(ctx, out.judges, model.StageJudges, func(ctx context.Context) (model.JudgesResult, error) {
				return extract.Run[model.JudgesResult](ctx, p.extractor, p.opts.Tasks.Judges, in)
			})
			return nil
		})
	}
	if p.enabled[model.StageParties] {
		out.parties = &stageValue[model.PartiesResult]{}
		g.Go(func() error {
			runStage(ctx, out.parties, model.StageParties, func(ctx context.Context) (model.PartiesResult, error) {
				return extract.Run[model.PartiesResult](ctx, p.extractor, p.opts.Tasks.Parties, in)
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func runStage[T any](ctx context.Context, dst *stageValue[T], stage model.Stage, fn func(context.Context) (T, error)) {
	var err error
	took := timed(func() { dst.val, err = fn(ctx) })
	dst.res = StageResult{Stage: stage, Status: StageOK, Duration: took}
	if err != nil {
		dst.res.Status = StageFailed
		dst.res.Err = err
	}
}

func withStage(r StageResult, s model.Stage) StageResult {
	r.Stage = s
	return r
}

func (t textResults) merge(rec *model.CaseRecord, out *Outcome) {
	if !t.ran {
		return
	}
	if t.judges != nil {
		out.add(t.judges.res)
		if apply(rec, t.judges.res) {
			rec.Judges = nil
			if j := t.judges.val.Judges; j != nil {
				rec.Judges = model.Ptr(titleCase(strings.TrimSpace(*j)))
			}
		}
	}
	if t.parties != nil {
		out.add(t.parties.res)
		if apply(rec, t.parties.res) {
			rec.PartyName = nil
			if pn := t.parties.val.PartyName; pn != nil {
				rec.PartyName = model.Ptr(strings.TrimSpace(*pn))
			}
		}
	}
}

// apply records a stage's error on the record, or clears an earlier one.
// It reports whether the stage's value should be written.
func apply(rec *model.CaseRecord, r StageResult) bool {
	switch r.Status {
	case StageOK:
		rec.ClearStageError(r.Stage)
		return true
	case StageFailed:
		rec.SetStageError(r.Stage, r.Err)
	}
	return false
}

// --- classification ---

type classResult struct {
	ran bool
	stageValue[model.ClassificationResult]
}

func (p *Pipeline) runClassification(ctx context.Context, link string) classResult {
	out := classResult{ran: true}
	var pages []model.PageContent
	var err error
	out.res.Duration = timed(func() {
		pages, err = p.docs.Fetch(ctx, link, model.PageModeImage, p.opts.ImageMaxPages)
		if err != nil {
			return
		}
		out.val, err = extract.Run[model.ClassificationResult](ctx, p.extractor, p.opts.Tasks.Classification, extract.Input{Images: pages})
	})
	out.res.Stage = model.StageClassification
	out.res.Status = StageOK
	if err != nil {
		out.res.Status = StageFailed
		out.res.Err = err
	}
	return out
}

func (c classResult) merge(rec *model.CaseRecord, out *Outcome) {
	if !c.ran {
		return
	}
	out.add(c.res)
	if apply(rec, c.res) {
		rec.Classification = c.val.Classification()
	}
}

// --- summary service and rephrase ---

type summaryResults struct {
	service  *stageValue[*summarizer.Result]
	rephrase *stageValue[string]
	// placeholder replaces the summary after the service call failed.
	placeholder string
}

func (s summaryResults) serviceFailed() bool {
	return s.service != nil && s.service.res.Status == StageFailed
}

func (p *Pipeline) runSummaryChain(ctx context.Context, link, existing string) summaryResults {
	var out summaryResults
	summary := existing

	if p.enabled[model.StageSummary] {
		out.service = &stageValue[*summarizer.Result]{}
		policy := p.opts.SummaryRetry.WithLogger("summarizer", zap.String("pdf_link", link))
		var (
			err      error
			attempts int
		)
		took := timed(func() {
			out.service.val, err = resilience.DoVal(ctx, policy, func(ctx context.Context) (*summarizer.Result, error) {
				attempts++
				return p.summary.Summarize(ctx, link)
			})
		})
		out.service.res = StageResult{Stage: model.StageSummary, Status: StageOK, Duration: took}
		if err != nil {
			out.service.res.Status = StageFailed
			out.service.res.Err = err
			out.placeholder = summaryPlaceholder(attempts, err)
			return out
		}
		// A response without a summary keeps whatever the record had.
		if out.service.val.Found {
			summary = out.service.val.Summary
		}
	}

	if !p.enabled[model.StageRephrase] || summary == "" {
		return out
	}

	out.rephrase = &stageValue[string]{}
	var degraded bool
	var err error
	took := timed(func() {
		out.rephrase.val, degraded, err = resilience.DoValOr(ctx, resilience.Policy{MaxAttempts: 1}, summary,
			func(ctx context.Context) (string, error) {
				return extract.Text(ctx, p.extractor, p.opts.Tasks.Rephrase, extract.Input{Data: prompts.Data{Summary: summary}})
			})
	})
	out.rephrase.res = StageResult{Stage: model.StageRephrase, Status: StageOK, Duration: took}
	if degraded {
		out.rephrase.res.Status = StageDegraded
		out.rephrase.res.Err = err
	}
	return out
}

// summaryPlaceholder is stored in place of the summary when the service
// call failed. attempts counts the calls actually made.
func summaryPlaceholder(attempts int, err error) string {
	if attempts <= 1 {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Error after %d retries: %v", attempts, err)
}

func (s summaryResults) merge(rec *model.CaseRecord, out *Outcome) {
	if s.service != nil {
		out.add(s.service.res)
		switch s.service.res.Status {
		case StageFailed:
			rec.SetStageError(model.StageSummary, s.service.res.Err)
			rec.Summary = model.Ptr(s.placeholder)
		case StageOK:
			res := s.service.val
			if _, stale := rec.EnrichmentErrors[model.StageSummary]; stale && !res.Found {
				rec.Summary = nil
			}
			rec.ClearStageError(model.StageSummary)
			if res.Found {
				rec.Summary = model.Ptr(res.Summary)
			}
			if res.ID != "" {
				rec.SummaryID = res.ID
			}
			if res.NewURL != "" {
				rec.DocumentLink = res.NewURL
			}
		}
	}
	if s.rephrase != nil {
		out.add(s.rephrase.res)
		rec.RephrasedSummary = model.Ptr(s.rephrase.val)
		if s.rephrase.res.Status == StageDegraded {
			rec.SetStageError(model.StageRephrase, s.rephrase.res.Err)
		} else {
			rec.ClearStageError(model.StageRephrase)
		}
	}
}

// --- novelty ---

type noveltyResult struct {
	stageValue[model.NoveltyResult]
}

func (p *Pipeline) runNovelty(ctx context.Context, rec *model.CaseRecord) noveltyResult {
	var out noveltyResult
	in := extract.Input{Data: prompts.Data{
		PartyName: model.Deref(rec.PartyName),
		Summary:   model.Deref(rec.Summary),
	}}
	runStage(ctx, &out.stageValue, model.StageNovelty, func(ctx context.Context) (model.NoveltyResult, error) {
		return extract.Run[model.NoveltyResult](ctx, p.extractor, p.opts.Tasks.Novelty, in)
	})
	return out
}

func (n noveltyResult) merge(rec *model.CaseRecord, out *Outcome) {
	out.add(n.res)
	if !apply(rec, n.res) {
		return
	}
	rec.NoveltyScore = n.val.Score
	rec.AreaOfLaw = n.val.AreaOfLaw
	rec.NoveltyReasons = model.Reasons(n.val.Reasons)
}
