package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/judgment-cli/internal/db"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	stages     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_records (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	position      INTEGER NOT NULL,
	serial_number TEXT NOT NULL DEFAULT '',
	party_name    TEXT,
	record        JSONB NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL,
	record     JSONB NOT NULL,
	stages     JSONB NOT NULL,
	error      TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT 'permanent',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_records_party ON run_records(party_name);
CREATE INDEX IF NOT EXISTS idx_dead_letters_run_id ON dead_letters(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input string, stages []model.Stage) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stages")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, stages, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, input, stagesJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		Input:     input,
		Stages:    stages,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result RunResult) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	status, errMsg := completeStatus(result)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET output = $1, stats = $2, status = $3, error = $4, updated_at = $5 WHERE id = $6`,
		result.Output, statsJSON, string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, input, output, stages, status, stats, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, 100))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var stagesJSON, statsJSON []byte
	var errMsg *string
	if err := row.Scan(&r.ID, &r.Input, &r.Output, &stagesJSON, &r.Status, &statsJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRunJSON(&r, stagesJSON, statsJSON); err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

var recordColumns = []string{"run_id", "position", "serial_number", "party_name", "record"}

// SaveRecords upserts the run's records by position and removes positions
// past the end of records.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, records []model.CaseRecord) error {
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		b, err := marshalRecord(rec)
		if err != nil {
			return err
		}
		serial, party := recordKey(rec)
		rows = append(rows, []any{runID, int32(i), serial, party, b})
	}

	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "run_records",
		Columns:      recordColumns,
		ConflictKeys: []string{"run_id", "position"},
	}, rows); err != nil {
		return eris.Wrapf(err, "postgres: save records for run %s", runID)
	}

	_, err := s.pool.Exec(ctx, `DELETE FROM run_records WHERE run_id = $1 AND position >= $2`, runID, int32(len(records)))
	return eris.Wrapf(err, "postgres: trim records for run %s", runID)
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.CaseRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM run_records WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.CaseRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.CaseRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

var deadLetterColumns = []string{"id", "run_id", "record", "stages", "error", "error_type", "created_at"}

func (s *PostgresStore) EnqueueDeadLetters(ctx context.Context, letters []resilience.DeadLetter) error {
	rows := make([][]any, 0, len(letters))
	for _, dl := range letters {
		recJSON, stagesJSON, err := encodeDeadLetter(dl)
		if err != nil {
			return err
		}
		if dl.ID == "" {
			dl.ID = uuid.New().String()
		}
		rows = append(rows, []any{dl.ID, dl.RunID, recJSON, stagesJSON, dl.Error, dl.ErrorType, dl.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "dead_letters", deadLetterColumns, rows)
	return eris.Wrap(err, "postgres: enqueue dead letters")
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, run_id, record, stages, error, error_type, created_at FROM dead_letters WHERE true`
	args := []any{}
	argIdx := 1
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, 100))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		var recJSON, stagesJSON []byte
		if err := rows.Scan(&dl.ID, &dl.RunID, &recJSON, &stagesJSON, &dl.Error, &dl.ErrorType, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		if err := decodeDeadLetter(&dl, recJSON, stagesJSON); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dead letters iterate")
}
