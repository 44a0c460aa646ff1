// Package history records benchmark runs and resume passes in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	DefaultPath  = "data/vlmbench.db"
	defaultLimit = 50
)

type Store struct {
	db *sql.DB
}

// Run is one recorded batch run or resume pass.
type Run struct {
	ID          int64
	Kind        string // "run" or "resume"
	Backend     string
	Model       string
	Dataset     string
	OutputFile  string
	Total       int
	Succeeded   int
	Failed      int
	Concurrency int
	StartedAt   time.Time
	DurationMs  int64
}

// NewStore opens (and initializes) the run-history database.
func NewStore(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("history: empty db path")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("history: create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping db: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("history: nil db")
	}

	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			backend TEXT NOT NULL,
			model TEXT NOT NULL,
			dataset TEXT NOT NULL,
			output_file TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			concurrency INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts a run record and fills in its assigned id.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if s == nil || s.db == nil {
		return errors.New("history: nil store")
	}
	if ctx == nil {
		return errors.New("history: nil context")
	}
	if run == nil {
		return errors.New("history: nil run")
	}

	kind := strings.TrimSpace(run.Kind)
	if kind == "" {
		kind = "run"
	}

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			kind, backend, model, dataset, output_file,
			total, succeeded, failed, concurrency, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		kind,
		strings.TrimSpace(run.Backend),
		strings.TrimSpace(run.Model),
		strings.TrimSpace(run.Dataset),
		strings.TrimSpace(run.OutputFile),
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Concurrency,
		startedAt.UTC().UnixMilli(),
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	run.Kind = kind
	run.StartedAt = startedAt
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: nil store")
	}
	if ctx == nil {
		return nil, errors.New("history: nil context")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, backend, model, dataset, output_file,
			total, succeeded, failed, concurrency, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var out []Run
	for rows.Next() {
		var r Run
		var startedMS int64
		if err := rows.Scan(
			&r.ID,
			&r.Kind,
			&r.Backend,
			&r.Model,
			&r.Dataset,
			&r.OutputFile,
			&r.Total,
			&r.Succeeded,
			&r.Failed,
			&r.Concurrency,
			&startedMS,
			&r.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	return out, nil
}

// Open creates the store from config-style type/path values.
func Open(storageType, path string) (*Store, error) {
	storageType = strings.ToLower(strings.TrimSpace(storageType))
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		path = strings.TrimSpace(path)
		if path == "" {
			path = DefaultPath
		}
		return NewStore(path)
	case "memory":
		return NewStore(":memory:")
	default:
		return nil, fmt.Errorf("history: unsupported storage type %q", storageType)
	}
}
