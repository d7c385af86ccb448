package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		plan TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		component TEXT,
		status TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		detail TEXT,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_agents (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL,
		restarts INTEGER NOT NULL,
		PRIMARY KEY (run_id, agent_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS health_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		agent_name TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_health_alerts_run_id ON health_alerts(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
