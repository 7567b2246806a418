package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/judgment-cli/internal/extract"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/prompts"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/pkg/summarizer"
)

const testLink = "https://www.cercind.gov.in/2024/orders/12.pdf"

// fakeDocs serves canned pages per mode.
type fakeDocs struct {
	mu    sync.Mutex
	pages map[model.PageMode][]model.PageContent
	errs  map[model.PageMode]error
	calls map[model.PageMode]int
	max   map[model.PageMode]int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		pages: map[model.PageMode][]model.PageContent{
			model.PageModeText:  {{Number: 1, Text: "NTPC LIMITED\nVersus\nMPPMCL"}, {Number: 2, Text: "Coram: jishnu barua, chairperson"}},
			model.PageModeImage: {{Number: 1, Image: []byte("\x89PNG"), MediaType: "image/png"}},
		},
		errs:  map[model.PageMode]error{},
		calls: map[model.PageMode]int{},
		max:   map[model.PageMode]int{},
	}
}

func (f *fakeDocs) Fetch(_ context.Context, _ string, mode model.PageMode, maxPages int) ([]model.PageContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[mode]++
	f.max[mode] = maxPages
	if err := f.errs[mode]; err != nil {
		return nil, err
	}
	return f.pages[mode], nil
}

// fakeLLM answers each task from a queue; the last answer repeats.
type fakeLLM struct {
	mu      sync.Mutex
	answers map[string][]reply
	calls   map[string]int
	reqs    map[string]extract.Request
}

type reply struct {
	text string
	err  error
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		answers: map[string][]reply{
			"judges":         {{text: `{"judges": "jishnu barua, chairperson"}`}},
			"parties":        {{text: `{"party_name": "NTPC LIMITED VS MPPMCL"}`}},
			"classification": {{text: `{"type": "Judgment"}`}},
			"rephrase":       {{text: "NTPC sought approval of tariff; the Commission allowed it."}},
			"novelty":        {{text: `{"score": "High", "reasons": ["First ruling on the issue."], "area_of_law": "Administrative Law"}`}},
		},
		calls: map[string]int{},
		reqs:  map[string]extract.Request{},
	}
}

func (f *fakeLLM) set(task string, replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[task] = replies
}

func (f *fakeLLM) count(task string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[task]
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req extract.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[req.Task]
	f.calls[req.Task]++
	f.reqs[req.Task] = req
	q := f.answers[req.Task]
	if len(q) == 0 {
		return "", errors.New("no answer for " + req.Task)
	}
	if n >= len(q) {
		n = len(q) - 1
	}
	return q[n].text, q[n].err
}

type fakeSummarizer struct {
	mu      sync.Mutex
	results []*summarizer.Result
	errs    []error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (*summarizer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls
	f.calls++
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if len(f.results) == 0 {
		return &summarizer.Result{Summary: "Tariff petition allowed.", ID: "sum-1", Found: true}, nil
	}
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	return f.results[n], nil
}

func fastTasks() Tasks {
	return Tasks{
		Judges:         extract.Judges.WithRetry(resilience.FixedBackoff(2, 0)),
		Parties:        extract.Parties.WithRetry(resilience.FixedBackoff(2, 0)),
		Classification: extract.Classification.WithRetry(resilience.FixedBackoff(3, 0)),
		Rephrase:       extract.Rephrase.WithRetry(resilience.FixedBackoff(3, 0)),
		Novelty:        extract.Novelty.WithRetry(resilience.FixedBackoff(3, 0)),
	}
}

func newTestPipeline(t *testing.T, docs DocumentSource, llm extract.Provider, sum summarizer.Client, stages ...model.Stage) *Pipeline {
	t.Helper()
	set, err := prompts.Default()
	require.NoError(t, err)
	if len(stages) == 0 {
		stages = model.AllStages()
	}
	return New(docs, extract.New(llm, set, extract.Options{}), sum, Options{
		Stages:       stages,
		Tasks:        fastTasks(),
		SummaryRetry: resilience.FixedBackoff(3, 0),
	})
}

func TestEnrich_AllStages(t *testing.T) {
	docs, llm, sum := newFakeDocs(), newFakeLLM(), &fakeSummarizer{}
	p := newTestPipeline(t, docs, llm, sum)

	rec := &model.CaseRecord{SerialNumber: "7", DocumentLink: testLink}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.NoError(t, out.Err())

	want := &model.CaseRecord{
		SerialNumber:     "7",
		DocumentLink:     testLink,
		PartyName:        model.Ptr("NTPC LIMITED VS MPPMCL"),
		Judges:           model.Ptr("Jishnu Barua, Chairperson"),
		Classification:   model.ClassificationJudgment,
		Summary:          model.Ptr("Tariff petition allowed."),
		RephrasedSummary: model.Ptr("NTPC sought approval of tariff; the Commission allowed it."),
		SummaryID:        "sum-1",
		AreaOfLaw:        model.Ptr(model.AreaAdministrative),
		NoveltyScore:     model.Ptr(model.NoveltyHigh),
		NoveltyReasons:   model.Reasons{"First ruling on the issue."},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 10, docs.max[model.PageModeText])
	assert.Equal(t, 13, docs.max[model.PageModeImage])
	assert.Equal(t, 1, docs.calls[model.PageModeText], "judges and parties share one text fetch")
	assert.Len(t, out.Stages, 6)

	novelty := llm.reqs["novelty"]
	assert.Contains(t, novelty.User, "NTPC LIMITED VS MPPMCL")
	assert.Contains(t, novelty.User, "Tariff petition allowed.")
	assert.Len(t, llm.reqs["classification"].Images, 1)
	assert.Contains(t, llm.reqs["judges"].User, "Coram: jishnu barua")
}

func TestEnrich_InvalidLinkIsNoop(t *testing.T) {
	for _, link := range []string{"", "N/A", "not a url", "mailto:clerk@example.org"} {
		t.Run(link, func(t *testing.T) {
			docs, llm := newFakeDocs(), newFakeLLM()
			p := newTestPipeline(t, docs, llm, &fakeSummarizer{})

			rec := &model.CaseRecord{DocumentLink: link, PartyName: model.Ptr("A VS B")}
			before := *rec
			out, err := p.Enrich(context.Background(), rec)

			assert.ErrorIs(t, err, ErrNoDocument)
			assert.Nil(t, out)
			assert.Equal(t, before, *rec)
			assert.Empty(t, docs.calls)
			assert.Empty(t, llm.calls)
		})
	}
}

func TestEnrich_ClassificationRetriedUntilValid(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	llm.set("classification",
		reply{text: "I think this is an order."},
		reply{text: `{"type": "typing.Literal['Order', 'Judgment']"}`},
		reply{text: "```json\n{\"type\": \"Order\"}\n```"},
	)
	p := newTestPipeline(t, docs, llm, nil, model.StageClassification)

	rec := &model.CaseRecord{DocumentLink: testLink}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Equal(t, model.ClassificationOrder, rec.Classification)
	assert.Equal(t, 3, llm.count("classification"))
}

func TestEnrich_FetchTimeoutFailsTextStagesOnly(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	docs.errs[model.PageModeText] = resilience.NewTransientError(errors.New("GET: context deadline exceeded"), 0)
	p := newTestPipeline(t, docs, llm, nil, model.StageJudges, model.StageParties, model.StageClassification)

	rec := &model.CaseRecord{DocumentLink: testLink, PartyName: model.Ptr("OLD VS NAME")}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.True(t, out.Failed())
	require.Error(t, out.Err())
	assert.Contains(t, rec.EnrichmentErrors[model.StageJudges], "deadline exceeded")
	assert.Contains(t, rec.EnrichmentErrors[model.StageParties], "deadline exceeded")
	assert.Equal(t, "OLD VS NAME", *rec.PartyName, "failed stage leaves its field alone")
	assert.Nil(t, rec.Judges)
	assert.Equal(t, model.ClassificationJudgment, rec.Classification)
	assert.NotContains(t, rec.EnrichmentErrors, model.StageClassification)
	assert.Zero(t, llm.count("judges"))
	assert.Zero(t, llm.count("parties"))
}

func TestEnrich_NullResultsAreNotFailures(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	llm.set("judges", reply{text: `{"judges": null}`})
	llm.set("parties", reply{text: `{"party_name": null}`})
	p := newTestPipeline(t, docs, llm, nil, model.StageJudges, model.StageParties)

	rec := &model.CaseRecord{DocumentLink: testLink, Judges: model.Ptr("stale")}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Nil(t, rec.Judges)
	assert.Nil(t, rec.PartyName)
	assert.False(t, rec.Failed())
}

func TestEnrich_SummaryServiceFailure(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	boom := resilience.NewTransientError(errors.New("summarizer: status 503"), 503)
	sum := &fakeSummarizer{errs: []error{boom, boom, boom}}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary, model.StageRephrase, model.StageNovelty)

	rec := &model.CaseRecord{DocumentLink: testLink}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.calls)
	require.NotNil(t, rec.Summary)
	assert.True(t, strings.HasPrefix(*rec.Summary, "Error after 3 retries: "))
	assert.Contains(t, rec.EnrichmentErrors, model.StageSummary)
	assert.Nil(t, rec.RephrasedSummary)
	assert.Zero(t, llm.count("rephrase"))
	assert.Zero(t, llm.count("novelty"))

	statuses := map[model.Stage]StageStatus{}
	for _, s := range out.Stages {
		statuses[s.Stage] = s.Status
	}
	assert.Equal(t, StageFailed, statuses[model.StageSummary])
	assert.Equal(t, StageSkipped, statuses[model.StageNovelty])
}

func TestEnrich_SummaryServiceRecovers(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	sum := &fakeSummarizer{
		errs: []error{resilience.NewTransientError(errors.New("timeout"), 0)},
		results: []*summarizer.Result{nil, {
			Summary: "Review petition dismissed.",
			ID:      "abc",
			NewURL:  "https://cdn.example.org/abc.pdf",
			Found:   true,
		}},
	}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary)

	rec := &model.CaseRecord{DocumentLink: testLink}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.calls)
	assert.Equal(t, "Review petition dismissed.", *rec.Summary)
	assert.Equal(t, "abc", rec.SummaryID)
	assert.Equal(t, "https://cdn.example.org/abc.pdf", rec.DocumentLink)
}

func TestEnrich_NoSummaryFoundSkipsRephraseAndNovelty(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	sum := &fakeSummarizer{results: []*summarizer.Result{{ID: "x"}}}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary, model.StageRephrase, model.StageNovelty)

	rec := &model.CaseRecord{DocumentLink: testLink}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Nil(t, rec.Summary)
	assert.Nil(t, rec.RephrasedSummary)
	assert.Zero(t, llm.count("rephrase"))
	assert.Zero(t, llm.count("novelty"))
}

func TestEnrich_NoSummaryFoundKeepsPriorSummary(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	sum := &fakeSummarizer{results: []*summarizer.Result{{ID: "x"}}}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary)

	rec := &model.CaseRecord{DocumentLink: testLink, Summary: model.Ptr("Existing summary.")}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	require.NotNil(t, rec.Summary)
	assert.Equal(t, "Existing summary.", *rec.Summary)
	assert.Equal(t, "x", rec.SummaryID)
}

func TestEnrich_NoSummaryFoundDropsStalePlaceholder(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	sum := &fakeSummarizer{results: []*summarizer.Result{{ID: "x"}}}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary, model.StageRephrase)

	rec := &model.CaseRecord{
		DocumentLink:     testLink,
		Summary:          model.Ptr("Error after 3 retries: boom"),
		EnrichmentErrors: map[model.Stage]string{model.StageSummary: "boom"},
	}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Nil(t, rec.Summary)
	assert.NotContains(t, rec.EnrichmentErrors, model.StageSummary)
	assert.Zero(t, llm.count("rephrase"))
}

func TestEnrich_SummaryServicePermanentFailure(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	sum := &fakeSummarizer{errs: []error{errors.New("summarizer: status 400")}}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary)

	rec := &model.CaseRecord{DocumentLink: testLink}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.calls)
	require.NotNil(t, rec.Summary)
	assert.True(t, strings.HasPrefix(*rec.Summary, "Error: "), *rec.Summary)
	assert.NotContains(t, *rec.Summary, "retries")
	assert.Contains(t, rec.EnrichmentErrors, model.StageSummary)
}

func TestSummaryPlaceholder(t *testing.T) {
	boom := errors.New("boom")
	assert.Equal(t, "Error: boom", summaryPlaceholder(1, boom))
	assert.Equal(t, "Error after 2 retries: boom", summaryPlaceholder(2, boom))
}

func TestEnrich_RephraseFallsBackToSummary(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	llm.set("rephrase", reply{err: resilience.NewTransientError(errors.New("overloaded"), 529)})
	sum := &fakeSummarizer{}
	p := newTestPipeline(t, docs, llm, sum, model.StageSummary, model.StageRephrase, model.StageNovelty)

	rec := &model.CaseRecord{DocumentLink: testLink}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 3, llm.count("rephrase"))
	assert.Equal(t, "Tariff petition allowed.", *rec.RephrasedSummary)
	assert.Contains(t, rec.EnrichmentErrors[model.StageRephrase], "overloaded")
	assert.True(t, out.Failed())

	// Novelty still runs over the original summary.
	assert.Equal(t, 1, llm.count("novelty"))
	assert.Equal(t, model.NoveltyHigh, *rec.NoveltyScore)
}

func TestEnrich_RephraseOnlyUsesExistingSummary(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	p := newTestPipeline(t, docs, llm, nil, model.StageRephrase)

	rec := &model.CaseRecord{DocumentLink: testLink, Summary: model.Ptr("Existing summary.")}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Contains(t, llm.reqs["rephrase"].User, "Existing summary.")
	assert.NotNil(t, rec.RephrasedSummary)
	assert.Empty(t, docs.calls)
}

func TestEnrich_NoveltyPartialResult(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	llm.set("novelty", reply{text: `{"score": "Low"}`})
	p := newTestPipeline(t, docs, llm, nil, model.StageNovelty)

	rec := &model.CaseRecord{DocumentLink: testLink, Summary: model.Ptr("s"), PartyName: model.Ptr("A VS B")}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.NoveltyLow, *rec.NoveltyScore)
	assert.Nil(t, rec.AreaOfLaw)
	assert.Empty(t, rec.NoveltyReasons)
}

func TestEnrich_NoveltySkippedForStaleSummaryError(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	p := newTestPipeline(t, docs, llm, nil, model.StageNovelty)

	rec := &model.CaseRecord{
		DocumentLink:     testLink,
		Summary:          model.Ptr("Error after 3 retries: boom"),
		EnrichmentErrors: map[model.Stage]string{model.StageSummary: "boom"},
	}
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, llm.count("novelty"))
	require.Len(t, out.Stages, 1)
	assert.Equal(t, StageSkipped, out.Stages[0].Status)
}

func TestEnrich_RerunClearsStageError(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	p := newTestPipeline(t, docs, llm, nil, model.StageJudges)

	rec := &model.CaseRecord{
		DocumentLink:     testLink,
		EnrichmentErrors: map[model.Stage]string{model.StageJudges: "timeout"},
	}
	_, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Nil(t, rec.EnrichmentErrors)
	assert.Equal(t, "Jishnu Barua, Chairperson", *rec.Judges)
}

func TestEnrich_CancelledContext(t *testing.T) {
	docs, llm := newFakeDocs(), newFakeLLM()
	p := newTestPipeline(t, docs, llm, &fakeSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &model.CaseRecord{DocumentLink: testLink}
	_, err := p.Enrich(ctx, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rec.PartyName)
}

func TestNew_Defaults(t *testing.T) {
	p := New(newFakeDocs(), nil, nil, Options{Stages: []model.Stage{model.StageParties}})
	assert.Equal(t, 10, p.opts.TextMaxPages)
	assert.Equal(t, 13, p.opts.ImageMaxPages)
	assert.Equal(t, "judges", p.opts.Tasks.Judges.Name)
	assert.Equal(t, 3, p.opts.SummaryRetry.MaxAttempts)
	assert.Equal(t, []model.Stage{model.StageParties}, p.Stages())
}
