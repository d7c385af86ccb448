// Package pool tracks agent identity and state for the run. The pool is
// the only structure mutated by two independent loops (the orchestrator's
// assignment path and the health monitor's liveness path), so every
// mutation goes through one mutex.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAgentBusy indicates an assignment attempt on a non-idle agent.
	// It marks a scheduling race, not a task failure: the caller skips the
	// pairing and tries the next idle agent.
	ErrAgentBusy = errors.New("agent not idle")

	// ErrRestartBudget indicates an agent has used up its restart budget.
	// The caller must raise a health alert instead of retrying.
	ErrRestartBudget = errors.New("restart budget exceeded")

	// ErrUnknownAgent indicates an agent ID outside the pool.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Outcome is the result an agent is released with.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
)

// Pool owns the authoritative collection of agents.
type Pool struct {
	mu          sync.Mutex
	agents      []*Agent
	maxRestarts int
}

// New creates a fixed pool of n agents, all idle with a fresh heartbeat.
// names supplies display names; agents beyond its length get a generated
// one.
func New(n int, names []string, maxRestarts int) *Pool {
	now := time.Now()
	agents := make([]*Agent, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("agent-%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		agents[i] = &Agent{
			ID:            i,
			Name:          name,
			State:         StateIdle,
			LastHeartbeat: now,
		}
	}
	return &Pool{agents: agents, maxRestarts: maxRestarts}
}

func (p *Pool) get(agentID int) (*Agent, error) {
	if agentID < 0 || agentID >= len(p.agents) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, agentID)
	}
	return p.agents[agentID], nil
}

// Idle returns clones of all agents currently idle, in ID order.
// Permanently failed agents never appear here.
func (p *Pool) Idle() []*Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idle []*Agent
	for _, a := range p.agents {
		if a.State == StateIdle {
			idle = append(idle, cloneAgent(a))
		}
	}
	return idle
}

// Assign atomically claims an idle agent for a task. Returns ErrAgentBusy
// if the agent is not idle, which protects against double-assignment races
// between orchestrator iterations.
func (p *Pool) Assign(agentID int, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return err
	}
	if a.State != StateIdle {
		return fmt.Errorf("%w: agent %d is %s", ErrAgentBusy, agentID, a.State)
	}

	a.State = StateWorking
	a.CurrentTask = taskID
	a.LastHeartbeat = time.Now()
	return nil
}

// Release returns a working agent to idle after taskID finished and
// updates its completion counters. The release is a no-op unless the agent
// still holds taskID: the health monitor may have restarted the agent (and
// handed it new work) while the stale execution was finishing.
func (p *Pool) Release(agentID int, taskID string, outcome Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return err
	}
	if a.State == StateFailed || a.CurrentTask != taskID {
		return nil
	}

	a.CurrentTask = ""
	a.State = StateIdle
	a.LastHeartbeat = time.Now()
	switch outcome {
	case OutcomeCompleted:
		a.TasksCompleted++
	case OutcomeFailed:
		a.TasksFailed++
	}
	return nil
}

// RecordHeartbeat updates an agent's liveness timestamp. Called by the
// executing agent's runtime on a fixed cadence, independent of task
// progress.
func (p *Pool) RecordHeartbeat(agentID int, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return err
	}
	if ts.After(a.LastHeartbeat) {
		a.LastHeartbeat = ts
	}
	return nil
}

// RefreshIdle bumps the heartbeat of every idle agent. The health sweep
// calls this so that only working agents can go stale.
func (p *Pool) RefreshIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.agents {
		if a.State == StateIdle && now.After(a.LastHeartbeat) {
			a.LastHeartbeat = now
		}
	}
}

// IsStale reports whether an agent's heartbeat is older than timeout.
// This is the sole liveness predicate the health monitor consumes.
// Permanently failed agents are never stale; they are out of the run.
func (p *Pool) IsStale(agentID int, now time.Time, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil || a.State == StateFailed {
		return false
	}
	return now.Sub(a.LastHeartbeat) > timeout
}

// Restart consumes one unit of the agent's restart budget and returns the
// agent to idle with a fresh heartbeat. The task the agent was holding, if
// any, is returned so the caller can fail it through the task graph.
// Once the budget is exhausted it returns ErrRestartBudget without
// touching the agent; the caller must raise a health alert.
func (p *Pool) Restart(agentID int) (lostTask string, restarts int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return "", 0, err
	}
	if a.RestartCount >= p.maxRestarts {
		return "", a.RestartCount, fmt.Errorf("%w: agent %d used %d restarts", ErrRestartBudget, agentID, a.RestartCount)
	}

	lostTask = a.CurrentTask
	a.RestartCount++
	a.CurrentTask = ""
	a.State = StateIdle
	a.LastHeartbeat = time.Now()
	return lostTask, a.RestartCount, nil
}

// MarkFailed permanently removes an agent from rotation. Its in-flight
// task, if any, is returned for the caller to fail.
func (p *Pool) MarkFailed(agentID int) (lostTask string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return "", err
	}
	lostTask = a.CurrentTask
	a.CurrentTask = ""
	a.State = StateFailed
	return lostTask, nil
}

// Agents returns clones of all agents in ID order.
func (p *Pool) Agents() []*Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	agents := make([]*Agent, len(p.agents))
	for i, a := range p.agents {
		agents[i] = cloneAgent(a)
	}
	return agents
}

// Get returns a clone of one agent.
func (p *Pool) Get(agentID int) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.get(agentID)
	if err != nil {
		return nil, err
	}
	return cloneAgent(a), nil
}

// Counts returns the number of agents per state.
func (p *Pool) Counts() map[State]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[State]int)
	for _, a := range p.agents {
		counts[a.State]++
	}
	return counts
}

// Len returns the pool size, including permanently failed agents.
func (p *Pool) Len() int {
	return len(p.agents)
}
