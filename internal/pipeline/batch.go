package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/judgment-cli/internal/model"
)

// EnrichFunc enriches one record in place. Pipeline.Enrich satisfies it.
type EnrichFunc func(ctx context.Context, rec *model.CaseRecord) (*Outcome, error)

// RecordStatus is how a batch counted one record.
type RecordStatus string

const (
	RecordProcessed RecordStatus = "processed"
	RecordSkipped   RecordStatus = "skipped"
	RecordFailed    RecordStatus = "failed"
)

// Progress is reported once per finished record, in completion order.
type Progress struct {
	Index  int
	Status RecordStatus
	Done   int
	Total  int
	Err    error
}

// Ratio is the fraction of the batch finished so far.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Concurrency int
	// OnProgress is called under a lock; it must not block for long.
	OnProgress func(Progress)
}

// Failure is a record that did not enrich cleanly.
type Failure struct {
	Index  int
	Record model.CaseRecord
	Err    error
}

// BatchResult holds the enriched records in input order.
type BatchResult struct {
	Records  []model.CaseRecord
	Failures []Failure
	Stats    model.BatchStats
}

// RunBatch enriches records with at most opts.Concurrency in flight. The
// input slice is not modified. A record whose enrichment panics, errors or
// leaves a stage failed is counted as failed; records without a document
// are skipped. The batch itself never aborts on a record.
func RunBatch(ctx context.Context, records []model.CaseRecord, opts BatchOptions, enrich EnrichFunc) *BatchResult {
	start := time.Now()
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	res := &BatchResult{
		Records: slices.Clone(records),
		Stats:   model.BatchStats{Total: len(records)},
	}

	var (
		mu       sync.Mutex
		done     int
		lastTick int
	)
	finish := func(i int, status RecordStatus, err error) {
		mu.Lock()
		defer mu.Unlock()

		done++
		switch status {
		case RecordProcessed:
			res.Stats.Processed++
		case RecordSkipped:
			res.Stats.Skipped++
		case RecordFailed:
			res.Stats.Failed++
			res.Failures = append(res.Failures, Failure{Index: i, Record: res.Records[i], Err: err})
		}

		p := Progress{Index: i, Status: status, Done: done, Total: len(records), Err: err}
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
		if tick := int(p.Ratio() * 10); tick > lastTick {
			lastTick = tick
			zap.L().Info("batch: progress",
				zap.Int("done", done),
				zap.Int("total", len(records)),
				zap.String("percent", fmt.Sprintf("%.0f%%", p.Ratio()*100)),
			)
		}
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range res.Records {
		g.Go(func() error {
			status, err := enrichOne(ctx, &res.Records[i], enrich)
			finish(i, status, err)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Failures, func(a, b Failure) int { return a.Index - b.Index })
	res.Stats.DurationMs = time.Since(start).Milliseconds()

	zap.L().Info("batch complete",
		zap.Int("total", res.Stats.Total),
		zap.Int("processed", res.Stats.Processed),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("failed", res.Stats.Failed),
		zap.Int64("duration_ms", res.Stats.DurationMs),
	)
	return res
}

func enrichOne(ctx context.Context, rec *model.CaseRecord, enrich EnrichFunc) (status RecordStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("batch: record panicked",
				zap.String("pdf_link", rec.DocumentLink),
				zap.Any("panic", r),
			)
			status, err = RecordFailed, eris.Errorf("pipeline: panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return RecordFailed, err
	}

	out, err := enrich(ctx, rec)
	switch {
	case errors.Is(err, ErrNoDocument):
		return RecordSkipped, nil
	case err != nil:
		return RecordFailed, err
	case out.Failed():
		return RecordFailed, out.Err()
	}
	return RecordProcessed, nil
}
