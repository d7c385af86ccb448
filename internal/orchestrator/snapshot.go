package orchestrator

import (
	"sync"

	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

type stateBox struct {
	mu sync.RWMutex
	s  State
}

func (b *stateBox) set(s State) {
	b.mu.Lock()
	b.s = s
	b.mu.Unlock()
}

func (b *stateBox) get() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.s
}

// Snapshot is a read-only view of the run for display. All slices hold
// copies; mutating them has no effect on the run.
type Snapshot struct {
	State  State
	Tasks  []*scheduler.Task
	Agents []*pool.Agent
}

// Snapshot captures the current run state. Safe to call from any
// goroutine at any time.
func (r *Runner) Snapshot() Snapshot {
	return Snapshot{
		State:  r.state.get(),
		Tasks:  r.graph.Tasks(),
		Agents: r.pool.Agents(),
	}
}

// State returns the control-loop state.
func (r *Runner) State() State {
	return r.state.get()
}
