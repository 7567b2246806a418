// Package store persists batch runs, their enriched records and dead
// letters in SQLite or Postgres.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/judgment-cli/internal/config"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RunResult closes a run. A non-nil Err marks the run failed.
type RunResult struct {
	Output string
	Stats  model.BatchStats
	Err    error
}

// Store defines the persistence interface for batch runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input string, stages []model.Stage) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Records, replaced wholesale per run in input order.
	SaveRecords(ctx context.Context, runID string, records []model.CaseRecord) error
	ListRecords(ctx context.Context, runID string) ([]model.CaseRecord, error)

	// Dead letters
	EnqueueDeadLetters(ctx context.Context, letters []resilience.DeadLetter) error
	ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the configured store, migrated. It returns nil when the
// driver is "none".
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "judgment.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func completeStatus(res RunResult) (model.RunStatus, *string) {
	if res.Err != nil {
		msg := res.Err.Error()
		return model.RunStatusFailed, &msg
	}
	return model.RunStatusComplete, nil
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// recordKey returns the indexed columns of a record.
func recordKey(rec model.CaseRecord) (serial string, party *string) {
	return string(rec.SerialNumber), rec.PartyName
}

func marshalRecord(rec model.CaseRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	return b, eris.Wrap(err, "store: marshal record")
}
