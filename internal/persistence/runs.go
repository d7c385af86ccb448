package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun persists a run and its per-task and per-agent records in one
// transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plan, state, started_at, finished_at, total, completed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Plan, run.State, run.StartedAt, run.FinishedAt,
		run.Total, run.Completed, run.Failed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, task := range run.Tasks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, task_id, name, component, status, agent_id, duration_ms, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, task.TaskID, task.Name, task.Component, task.Status,
			task.AgentID, task.Duration.Milliseconds(), task.Detail)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.TaskID, err)
		}
	}

	for _, agent := range run.Agents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_agents (run_id, agent_id, name, state, tasks_completed, tasks_failed, restarts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, agent.AgentID, agent.Name, agent.State,
			agent.TasksCompleted, agent.TasksFailed, agent.Restarts)
		if err != nil {
			return fmt.Errorf("failed to insert agent %d: %w", agent.AgentID, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one run with its task and agent records.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan, state, started_at, finished_at, total, completed, failed
		FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.Plan, &run.State, &run.StartedAt, &run.FinishedAt,
			&run.Total, &run.Completed, &run.Failed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Tasks, err = s.runTasks(ctx, runID); err != nil {
		return nil, err
	}
	if run.Agents, err = s.runAgents(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without their
// per-task and per-agent detail.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan, state, started_at, finished_at, total, completed, failed
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(&run.ID, &run.Plan, &run.State, &run.StartedAt,
			&run.FinishedAt, &run.Total, &run.Completed, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) runTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, name, component, status, agent_id, duration_ms, detail
		FROM run_tasks WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var durationMS int64
		if err := rows.Scan(&t.TaskID, &t.Name, &t.Component, &t.Status,
			&t.AgentID, &durationMS, &t.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan run task: %w", err)
		}
		t.Duration = time.Duration(durationMS) * time.Millisecond
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) runAgents(ctx context.Context, runID string) ([]AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, name, state, tasks_completed, tasks_failed, restarts
		FROM run_agents WHERE run_id = ? ORDER BY agent_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run agents: %w", err)
	}
	defer rows.Close()

	var agents []AgentRecord
	for rows.Next() {
		var a AgentRecord
		if err := rows.Scan(&a.AgentID, &a.Name, &a.State,
			&a.TasksCompleted, &a.TasksFailed, &a.Restarts); err != nil {
			return nil, fmt.Errorf("failed to scan run agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// SaveAlert records a health alert. Alerts are written as they happen,
// before the run row exists, so they carry no foreign key.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_alerts (run_id, agent_id, agent_name, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		alert.RunID, alert.AgentID, alert.AgentName, alert.Reason, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns a run's health alerts in the order they were raised.
func (s *SQLiteStore) ListAlerts(ctx context.Context, runID string) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, agent_id, agent_name, reason, created_at
		FROM health_alerts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a := &Alert{}
		if err := rows.Scan(&a.RunID, &a.AgentID, &a.AgentName, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
