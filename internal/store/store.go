// Package store persists pipeline run outcomes in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
)

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	concept           TEXT NOT NULL,
	done              INTEGER NOT NULL,
	outcome           TEXT NOT NULL,
	script            TEXT NOT NULL,
	code              TEXT NOT NULL,
	failure_kind      TEXT NOT NULL DEFAULT '',
	failure_message   TEXT NOT NULL DEFAULT '',
	feedback          TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	script_iterations INTEGER NOT NULL,
	code_calls        INTEGER NOT NULL,
	critique_calls    INTEGER NOT NULL,
	duration_ms       INTEGER NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// Record is one persisted run.
type Record struct {
	RunID            string        `json:"run_id"`
	Concept          string        `json:"concept"`
	Done             bool          `json:"done"`
	Outcome          string        `json:"outcome"`
	Script           string        `json:"script"`
	Code             string        `json:"code"`
	FailureKind      string        `json:"failure_kind,omitempty"`
	FailureMessage   string        `json:"failure_message,omitempty"`
	Feedback         string        `json:"feedback,omitempty"`
	Error            string        `json:"error,omitempty"`
	ScriptIterations int           `json:"script_iterations"`
	CodeCalls        int           `json:"code_calls"`
	CritiqueCalls    int           `json:"critique_calls"`
	Duration         time.Duration `json:"duration"`
	CreatedAt        time.Time     `json:"created_at"`
}

// FromResult flattens a pipeline result and its error into a record.
func FromResult(res pipeline.Result, runErr error, at time.Time) Record {
	rec := Record{
		RunID:            res.RunID,
		Concept:          res.Concept,
		Done:             res.Done,
		Script:           res.Script,
		Code:             res.Code,
		Feedback:         res.Feedback,
		ScriptIterations: res.ScriptIterations,
		CodeCalls:        res.CodeCalls,
		CritiqueCalls:    res.CritiqueCalls,
		Duration:         res.Duration,
		CreatedAt:        at.UTC(),
	}
	if res.Failure != nil {
		rec.FailureKind = string(res.Failure.Kind)
		rec.FailureMessage = res.Failure.Message
	}
	switch {
	case runErr != nil:
		rec.Outcome = "error"
		rec.Error = runErr.Error()
	case res.Done:
		rec.Outcome = "approved"
	default:
		rec.Outcome = "not_approved"
	}
	return rec
}

// Store is a run history backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite allows one writer; batch runs share this handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure store: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces rec.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.RunID == "" {
		return errors.New("record requires a run id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (
	id, concept, done, outcome, script, code, failure_kind, failure_message, feedback, error,
	script_iterations, code_calls, critique_calls, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Concept, boolInt(rec.Done), rec.Outcome, rec.Script, rec.Code,
		rec.FailureKind, rec.FailureMessage, rec.Feedback, rec.Error,
		rec.ScriptIterations, rec.CodeCalls, rec.CritiqueCalls,
		rec.Duration.Milliseconds(), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

const selectColumns = `id, concept, done, outcome, script, code, failure_kind, failure_message, feedback, error,
	script_iterations, code_calls, critique_calls, duration_ms, created_at`

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListOptions filters List.
type ListOptions struct {
	Limit    int
	Concept  string
	OnlyDone bool
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM runs WHERE 1=1`
	var args []any
	if opts.Concept != "" {
		query += ` AND concept = ?`
		args = append(args, opts.Concept)
	}
	if opts.OnlyDone {
		query += ` AND done = 1`
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec        Record
		done       int
		durationMS int64
		createdMS  int64
	)
	err := sc.Scan(
		&rec.RunID, &rec.Concept, &done, &rec.Outcome, &rec.Script, &rec.Code,
		&rec.FailureKind, &rec.FailureMessage, &rec.Feedback, &rec.Error,
		&rec.ScriptIterations, &rec.CodeCalls, &rec.CritiqueCalls, &durationMS, &createdMS,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Done = done != 0
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
