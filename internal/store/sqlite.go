package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	stages     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_records (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	position      INTEGER NOT NULL,
	serial_number TEXT NOT NULL DEFAULT '',
	party_name    TEXT,
	record        TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	record     TEXT NOT NULL,
	stages     TEXT NOT NULL,
	error      TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT 'permanent',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_records_party ON run_records(party_name);
CREATE INDEX IF NOT EXISTS idx_dead_letters_run_id ON dead_letters(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input string, stages []model.Stage) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, stages, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, input, string(stagesJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result RunResult) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	status, errMsg := completeStatus(result)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET output = ?, stats = ?, status = ?, error = ?, updated_at = ? WHERE id = ?`,
		result.Output, string(statsJSON), string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, input, output, stages, status, stats, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, records []model.CaseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_records WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear records for run %s", runID)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_records (run_id, position, serial_number, party_name, record) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close() //nolint:errcheck

	for i, rec := range records {
		b, err := marshalRecord(rec)
		if err != nil {
			return err
		}
		serial, party := recordKey(rec)
		if _, err := stmt.ExecContext(ctx, runID, i, serial, party, string(b)); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %d of run %s", i, runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit records")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM run_records WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CaseRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.CaseRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) EnqueueDeadLetters(ctx context.Context, letters []resilience.DeadLetter) error {
	if len(letters) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin enqueue dead letters")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, dl := range letters {
		recJSON, stagesJSON, err := encodeDeadLetter(dl)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO dead_letters (id, run_id, record, stages, error, error_type, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			dl.ID, dl.RunID, string(recJSON), string(stagesJSON), dl.Error, dl.ErrorType, dl.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert dead letter %s", dl.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit dead letters")
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, run_id, record, stages, error, error_type, created_at FROM dead_letters WHERE 1=1`
	var args []any
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		var recJSON, stagesJSON string
		if err := rows.Scan(&dl.ID, &dl.RunID, &recJSON, &stagesJSON, &dl.Error, &dl.ErrorType, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		if err := decodeDeadLetter(&dl, []byte(recJSON), []byte(stagesJSON)); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dead letters iterate")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var stagesJSON string
	var statsJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Input, &r.Output, &stagesJSON, &r.Status, &statsJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := decodeRunJSON(&r, []byte(stagesJSON), []byte(statsJSON.String)); err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}

func decodeRunJSON(r *model.Run, stages, stats []byte) error {
	if err := json.Unmarshal(stages, &r.Stages); err != nil {
		return eris.Wrap(err, "store: unmarshal stages")
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return eris.Wrap(err, "store: unmarshal stats")
		}
	}
	return nil
}

func encodeDeadLetter(dl resilience.DeadLetter) (record, stages []byte, err error) {
	if record, err = marshalRecord(dl.Record); err != nil {
		return nil, nil, err
	}
	stages, err = json.Marshal(dl.Stages)
	return record, stages, eris.Wrap(err, "store: marshal dead letter stages")
}

func decodeDeadLetter(dl *resilience.DeadLetter, record, stages []byte) error {
	if err := json.Unmarshal(record, &dl.Record); err != nil {
		return eris.Wrap(err, "store: unmarshal dead letter record")
	}
	return eris.Wrap(json.Unmarshal(stages, &dl.Stages), "store: unmarshal dead letter stages")
}
