package orchestrator

import (
	"sort"
	"time"

	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

// TaskResult is one task's final record.
type TaskResult struct {
	ID        string
	Name      string
	Component string
	Status    scheduler.Status
	AgentID   int
	Duration  time.Duration
	Detail    string
}

// AgentResult is one agent's final record.
type AgentResult struct {
	ID             int
	Name           string
	State          pool.State
	TasksCompleted int
	TasksFailed    int
	Restarts       int
}

// Report summarizes a finished run.
type Report struct {
	State       State
	Duration    time.Duration
	Total       int
	Completed   int
	Failed      int
	NeverReady  []string // tasks that could not start because a dependency failed
	Tasks       []TaskResult
	Agents      []AgentResult
	ByComponent map[string]int // completed tasks per component
}

// Success reports whether every task completed.
func (rep *Report) Success() bool {
	return rep.State == StateDone
}

func (r *Runner) buildReport(state State, elapsed time.Duration) *Report {
	rep := &Report{
		State:       state,
		Duration:    elapsed,
		ByComponent: make(map[string]int),
	}

	for _, t := range r.graph.Tasks() {
		res := TaskResult{
			ID:        t.ID,
			Name:      t.Name,
			Component: t.Component,
			Status:    t.Status,
			AgentID:   t.AssignedAgent,
			Detail:    t.Detail,
		}
		if !t.StartedAt.IsZero() && !t.CompletedAt.IsZero() {
			res.Duration = t.CompletedAt.Sub(t.StartedAt)
		}
		rep.Tasks = append(rep.Tasks, res)
		rep.Total++

		switch t.Status {
		case scheduler.StatusCompleted:
			rep.Completed++
			rep.ByComponent[t.Component]++
		case scheduler.StatusFailed:
			rep.Failed++
		default:
			rep.NeverReady = append(rep.NeverReady, t.ID)
		}
	}
	sort.Strings(rep.NeverReady)

	for _, a := range r.pool.Agents() {
		rep.Agents = append(rep.Agents, AgentResult{
			ID:             a.ID,
			Name:           a.Name,
			State:          a.State,
			TasksCompleted: a.TasksCompleted,
			TasksFailed:    a.TasksFailed,
			Restarts:       a.RestartCount,
		})
	}
	return rep
}

func (r *Runner) logSummary(rep *Report) {
	if rep.Success() {
		r.cfg.Logger.Info("run done: %d/%d tasks completed in %s",
			rep.Completed, rep.Total, rep.Duration.Round(time.Millisecond))
		return
	}
	r.cfg.Logger.Error("run aborted: %d completed, %d failed, %d never ready %v",
		rep.Completed, rep.Failed, len(rep.NeverReady), rep.NeverReady)
	if unreachable := r.graph.Unreachable(); len(unreachable) > 0 {
		r.cfg.Logger.Error("unreachable due to failed dependencies: %v", unreachable)
	}
}
