package scheduler

import "time"

// Status represents the current state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusReady                   // All dependencies completed, not yet claimed
	StatusAssigned                // Claimed by an agent
	StatusRunning                 // Currently executing
	StatusCompleted               // Finished successfully
	StatusFailed                  // Finished with error
)

// String returns the lowercase name used in logs, plan files, and the run DB.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusAssigned:
		return "assigned"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether a task in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NoAgent is the AssignedAgent value of an unclaimed task.
const NoAgent = -1

// Task represents a unit of build work in the graph.
type Task struct {
	ID            string        // Unique identifier (e.g., "T004")
	Name          string        // Human-readable name
	Description   string        // Display only
	Component     string        // Opaque tag selecting the handler logic
	DependsOn     []string      // Task IDs that must complete first
	Timeout       time.Duration // Per-task timeout override (0 = global default)
	Status        Status
	AssignedAgent int       // Agent currently holding this task, or NoAgent
	StartedAt     time.Time // Set once on assignment
	CompletedAt   time.Time // Set once on completion or failure
	Detail        string    // Failure detail (empty unless StatusFailed)
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
