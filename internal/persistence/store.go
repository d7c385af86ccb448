// Package persistence records finished runs and health alerts in SQLite,
// so `foreman history` can answer questions about past runs without the
// core ever knowing a database exists.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is one finished run.
type RunRecord struct {
	ID         string
	Plan       string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Completed  int
	Failed     int
	Tasks      []TaskRecord
	Agents     []AgentRecord
}

// TaskRecord is one task's final state within a run.
type TaskRecord struct {
	TaskID    string
	Name      string
	Component string
	Status    string
	AgentID   int
	Duration  time.Duration
	Detail    string
}

// AgentRecord is one agent's final tally within a run.
type AgentRecord struct {
	AgentID        int
	Name           string
	State          string
	TasksCompleted int
	TasksFailed    int
	Restarts       int
}

// Alert is one health alert raised during a run.
type Alert struct {
	RunID     string
	AgentID   int
	AgentName string
	Reason    string
	CreatedAt time.Time
}

// Store defines the persistence interface for run history.
type Store interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, runID string) ([]*Alert, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys,
// and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite only honors pragmas in the _pragma=name(value)
	// form; the mattn-style _journal_mode params are silently ignored.
	// Listing foreign_keys here applies it to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for the per-run subqueries
	// in GetRun and ListRuns.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
