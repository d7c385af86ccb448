package pool

import "time"

// State represents the lifecycle state of an agent slot.
type State int

const (
	StateIdle    State = iota // Waiting for work
	StateWorking              // Executing a task
	StateFailed               // Restart budget exhausted, permanently out of rotation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Agent is one worker slot in the fixed pool. Agents are created once at
// startup and never destroyed; RestartCount persists across restarts
// within a run.
type Agent struct {
	ID             int
	Name           string
	State          State
	CurrentTask    string // Task ID being executed, empty when idle
	LastHeartbeat  time.Time
	RestartCount   int
	TasksCompleted int
	TasksFailed    int
}

func cloneAgent(a *Agent) *Agent {
	cp := *a
	return &cp
}
