package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicAgent = "agent"
	TopicRun   = "run"
)

// Event type constants
const (
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeAgentAssigned  = "agent.assigned"
	EventTypeAgentRestarted = "agent.restarted"
	EventTypeAgentLost      = "agent.lost"
	EventTypeHealthAlert    = "agent.health_alert"
	EventTypeProgress       = "run.progress"
)

// TaskStartedEvent is published when a task begins execution.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Component string
	AgentID   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	AgentID   int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails, times out, or is lost
// with a restarted agent.
type TaskFailedEvent struct {
	ID        string
	AgentID   int
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// AgentAssignedEvent is published when a ready task is paired with an idle
// agent.
type AgentAssignedEvent struct {
	AgentID   int
	AgentName string
	Task      string
	Timestamp time.Time
}

func (e AgentAssignedEvent) EventType() string { return EventTypeAgentAssigned }
func (e AgentAssignedEvent) TaskID() string    { return e.Task }

// AgentRestartedEvent is published when the health monitor restarts a
// stale agent.
type AgentRestartedEvent struct {
	AgentID      int
	AgentName    string
	RestartCount int
	LostTask     string
	Timestamp    time.Time
}

func (e AgentRestartedEvent) EventType() string { return EventTypeAgentRestarted }
func (e AgentRestartedEvent) TaskID() string    { return e.LostTask }

// AgentLostEvent is published when an agent exhausts its restart budget
// and leaves the pool for the rest of the run.
type AgentLostEvent struct {
	AgentID   int
	AgentName string
	Timestamp time.Time
}

func (e AgentLostEvent) EventType() string { return EventTypeAgentLost }
func (e AgentLostEvent) TaskID() string    { return "" }

// HealthAlertEvent is the one-shot notification raised when an agent's
// restart budget is exceeded.
type HealthAlertEvent struct {
	AgentID   int
	AgentName string
	Reason    string
	Timestamp time.Time
}

func (e HealthAlertEvent) EventType() string { return EventTypeHealthAlert }
func (e HealthAlertEvent) TaskID() string    { return "" }

// ProgressEvent is published periodically with run-wide counts.
type ProgressEvent struct {
	TotalTasks    int
	Completed     int
	Failed        int
	Running       int
	Pending       int
	WorkingAgents int
	HealthyAgents int
	Timestamp     time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }
