// Package orchestrator hosts the control loop that drives a task graph to
// completion over a fixed agent pool. The loop owns all task-status
// writes; agent liveness is the health monitor's business and meets this
// loop only at the pool's synchronized operations.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/executor"
	"github.com/aristath/foreman/internal/logging"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

// State is the orchestrator control-loop state.
type State int

const (
	StateInitializing State = iota
	StateRunning            // Scheduling / Dispatching / Collecting
	StateDraining
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Config configures a Runner.
type Config struct {
	Executor     *executor.Executor
	Bus          *events.Bus
	Logger       logging.Logger
	PollInterval time.Duration // idle wait between scheduling passes
	DrainTimeout time.Duration // how long shutdown waits for in-flight work
}

// Runner executes the graph until every task is terminal or the graph is
// stuck.
type Runner struct {
	cfg   Config
	graph *scheduler.Graph
	pool  *pool.Pool

	results  chan executor.Outcome
	inFlight int

	state stateBox
}

// NewRunner creates a Runner over the given graph and pool.
func NewRunner(cfg Config, graph *scheduler.Graph, agents *pool.Pool) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}
	return &Runner{
		cfg:   cfg,
		graph: graph,
		pool:  agents,
	}
}

// Run validates the graph and drives it to a terminal state. The returned
// report is non-nil whenever validation passed, including aborted runs.
// Run must be called at most once.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if _, err := r.graph.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	// Buffered for every task, so executor goroutines can always deliver
	// their outcome even if the loop has moved on.
	r.results = make(chan executor.Outcome, r.graph.Len())
	r.state.set(StateRunning)
	r.cfg.Logger.Info("run started: %d tasks, %d agents", r.graph.Len(), r.pool.Len())

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return r.drain(start), ctx.Err()
		}

		r.dispatchReady(ctx)

		if done, state := r.terminalState(); done {
			r.state.set(state)
			report := r.buildReport(state, time.Since(start))
			r.logSummary(report)
			return report, nil
		}

		select {
		case outcome := <-r.results:
			r.collect(outcome)
		case <-ticker.C:
			// Re-evaluate readiness; the health monitor may have failed an
			// in-flight task or returned a restarted agent to idle.
		case <-ctx.Done():
		}
	}
}

// terminalState decides whether the loop is finished and how.
func (r *Runner) terminalState() (bool, State) {
	if r.graph.AllCompleted() {
		return true, StateDone
	}
	if r.inFlight > 0 {
		return false, StateRunning
	}

	ready := r.graph.Ready()
	if len(ready) == 0 && r.graph.InFlight() == 0 {
		// Nothing ready, nothing running, not all completed: some task has
		// a failed dependency and the graph can never finish.
		return true, StateAborted
	}
	if len(ready) > 0 && r.pool.Counts()[pool.StateFailed] == r.pool.Len() {
		// Work remains but every agent is permanently gone.
		return true, StateAborted
	}
	return false, StateRunning
}

// dispatchReady pairs ready tasks with idle agents and launches an
// executor goroutine per pair. It never blocks on executions: the loop
// keeps collecting completions while work is in flight.
func (r *Runner) dispatchReady(ctx context.Context) {
	ready := r.graph.Ready()
	if len(ready) == 0 {
		return
	}
	idle := r.pool.Idle()

	for _, task := range ready {
		if len(idle) == 0 {
			return
		}
		agent := idle[0]
		idle = idle[1:]

		if err := r.pool.Assign(agent.ID, task.ID); err != nil {
			if errors.Is(err, pool.ErrAgentBusy) {
				// Lost a race with the health monitor for this agent; skip
				// it and keep the task for the next pass.
				r.cfg.Logger.Warn("dispatch race: %v", err)
				continue
			}
			r.cfg.Logger.Error("assign agent %d: %v", agent.ID, err)
			continue
		}

		if err := r.claimTask(task.ID, agent.ID); err != nil {
			// The claim failed after the agent was taken; put it back.
			r.cfg.Logger.Error("claim task %s: %v", task.ID, err)
			r.pool.Release(agent.ID, task.ID, pool.OutcomeFailed)
			continue
		}

		r.inFlight++
		r.publish(events.TopicAgent, events.AgentAssignedEvent{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			Task:      task.ID,
			Timestamp: time.Now(),
		})
		r.cfg.Logger.Info("assigned %s (%s) to %s", task.ID, task.Name, agent.Name)

		go r.execute(ctx, agent.ID, task)
	}
}

// claimTask walks the task through pending -> ready -> assigned.
func (r *Runner) claimTask(taskID string, agentID int) error {
	if err := r.graph.Mark(taskID, scheduler.StatusReady); err != nil {
		return err
	}
	return r.graph.MarkAssigned(taskID, agentID)
}

// execute runs one task on one agent and reports the outcome back to the
// loop. Runs in its own goroutine.
func (r *Runner) execute(ctx context.Context, agentID int, task *scheduler.Task) {
	if err := r.graph.Mark(task.ID, scheduler.StatusRunning); err != nil {
		// The health monitor already failed this task (agent went stale
		// between claim and start). Hand the slot back.
		r.cfg.Logger.Warn("task %s not started: %v", task.ID, err)
		r.results <- executor.Outcome{TaskID: task.ID, AgentID: agentID, Err: err, Reason: "not started"}
		return
	}

	r.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        task.ID,
		Name:      task.Name,
		Component: task.Component,
		AgentID:   agentID,
		Timestamp: time.Now(),
	})

	r.results <- r.cfg.Executor.Execute(ctx, agentID, task)
}

// collect applies one terminal outcome to the graph and the pool. Safe in
// any interleaving with the health monitor: a task the monitor already
// failed stays failed, and a restarted agent is never double-released.
func (r *Runner) collect(outcome executor.Outcome) {
	r.inFlight--

	if outcome.Success() {
		if err := r.graph.Mark(outcome.TaskID, scheduler.StatusCompleted); err != nil {
			// Already failed through the monitor's path; its work was
			// declared lost before the result arrived.
			r.cfg.Logger.Warn("late completion for %s dropped: %v", outcome.TaskID, err)
			r.pool.Release(outcome.AgentID, outcome.TaskID, pool.OutcomeFailed)
			return
		}
		r.pool.Release(outcome.AgentID, outcome.TaskID, pool.OutcomeCompleted)
		r.publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        outcome.TaskID,
			AgentID:   outcome.AgentID,
			Duration:  outcome.Duration,
			Timestamp: time.Now(),
		})
		r.cfg.Logger.Info("completed %s in %s", outcome.TaskID, outcome.Duration.Round(time.Millisecond))
	} else {
		if err := r.graph.MarkFailed(outcome.TaskID, outcome.Reason); err != nil {
			r.cfg.Logger.Warn("late failure for %s dropped: %v", outcome.TaskID, err)
		}
		r.pool.Release(outcome.AgentID, outcome.TaskID, pool.OutcomeFailed)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID:        outcome.TaskID,
			AgentID:   outcome.AgentID,
			Reason:    outcome.Reason,
			Duration:  outcome.Duration,
			Timestamp: time.Now(),
		})
		r.cfg.Logger.Error("failed %s: %s", outcome.TaskID, outcome.Reason)
	}

	r.publishProgress()
}

// drain stops dispatching and waits for in-flight executions to finish or
// the drain timeout to pass, then reports the interrupted run.
func (r *Runner) drain(start time.Time) *Report {
	r.state.set(StateDraining)
	r.cfg.Logger.Warn("shutdown: draining %d in-flight tasks", r.inFlight)

	deadline := time.NewTimer(r.cfg.DrainTimeout)
	defer deadline.Stop()

	for r.inFlight > 0 {
		select {
		case outcome := <-r.results:
			r.collect(outcome)
		case <-deadline.C:
			r.cfg.Logger.Error("drain timeout: %d tasks abandoned", r.inFlight)
			r.state.set(StateAborted)
			return r.buildReport(StateAborted, time.Since(start))
		}
	}

	state := StateAborted
	if r.graph.AllCompleted() {
		state = StateDone
	}
	r.state.set(state)
	return r.buildReport(state, time.Since(start))
}

func (r *Runner) publish(topic string, event events.Event) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(topic, event)
	}
}

func (r *Runner) publishProgress() {
	taskCounts := r.graph.Counts()
	agentCounts := r.pool.Counts()
	r.publish(events.TopicRun, events.ProgressEvent{
		TotalTasks:    r.graph.Len(),
		Completed:     taskCounts[scheduler.StatusCompleted],
		Failed:        taskCounts[scheduler.StatusFailed],
		Running:       taskCounts[scheduler.StatusRunning] + taskCounts[scheduler.StatusAssigned],
		Pending:       taskCounts[scheduler.StatusPending] + taskCounts[scheduler.StatusReady],
		WorkingAgents: agentCounts[pool.StateWorking],
		HealthyAgents: r.pool.Len() - agentCounts[pool.StateFailed],
		Timestamp:     time.Now(),
	})
}
