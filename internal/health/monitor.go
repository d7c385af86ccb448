// Package health watches agent heartbeats and recovers stale agents by
// restarting them, within a per-agent restart budget. A stale working
// agent's task is declared lost and marked failed; the orchestrator never
// waits for it.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/logging"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

const reasonAgentLost = "agent lost"

// Config configures the Monitor.
type Config struct {
	HeartbeatTimeout time.Duration // how long without a heartbeat before an agent is stale
	CheckInterval    time.Duration // sweep cadence
	Logger           logging.Logger
	Bus              *events.Bus
}

// Monitor periodically sweeps the pool for stale agents.
type Monitor struct {
	cfg   Config
	pool  *pool.Pool
	graph *scheduler.Graph

	// Per-agent restart pacing. An agent that keeps going stale waits
	// longer before each successive restart.
	delays  map[int]*backoff.ExponentialBackOff
	holdOff map[int]time.Time
}

// NewMonitor creates a Monitor over the given pool and graph.
func NewMonitor(cfg Config, agents *pool.Pool, graph *scheduler.Graph) *Monitor {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 30 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}
	return &Monitor{
		cfg:     cfg,
		pool:    agents,
		graph:   graph,
		delays:  make(map[int]*backoff.ExponentialBackOff),
		holdOff: make(map[int]time.Time),
	}
}

// Run sweeps until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep checks every agent once. Exported so the run loop's tests can
// drive it with a synthetic clock.
func (m *Monitor) Sweep(now time.Time) {
	// Idle agents do no work, so nothing refreshes their heartbeat; the
	// pool touches them here so staleness only ever means a hung handler.
	m.pool.RefreshIdle(now)

	for _, agent := range m.pool.Agents() {
		if agent.State == pool.StateFailed {
			continue
		}
		if !m.pool.IsStale(agent.ID, now, m.cfg.HeartbeatTimeout) {
			continue
		}
		if hold, ok := m.holdOff[agent.ID]; ok && now.Before(hold) {
			continue
		}
		m.recover(agent, now)
	}

	m.logProgress()
}

func (m *Monitor) logProgress() {
	tasks := m.graph.Counts()
	agents := m.pool.Counts()
	m.cfg.Logger.Info("progress: %d/%d tasks completed, %d failed, %d agents working, %d lost",
		tasks[scheduler.StatusCompleted], m.graph.Len(), tasks[scheduler.StatusFailed],
		agents[pool.StateWorking], agents[pool.StateFailed])
}

// recover restarts a stale agent, or retires it when the restart budget
// is spent. Either way the task it was holding is failed so the graph
// can move on.
func (m *Monitor) recover(agent *pool.Agent, now time.Time) {
	m.cfg.Logger.Warn("agent %s stale: no heartbeat since %s",
		agent.Name, agent.LastHeartbeat.Format(time.RFC3339))

	lostTask, restarts, err := m.pool.Restart(agent.ID)
	if errors.Is(err, pool.ErrRestartBudget) {
		m.retire(agent)
		return
	}
	if err != nil {
		m.cfg.Logger.Error("restart agent %d: %v", agent.ID, err)
		return
	}

	m.failLostTask(lostTask, agent.ID)
	m.holdOff[agent.ID] = now.Add(m.nextDelay(agent.ID))
	m.publish(events.TopicAgent, events.AgentRestartedEvent{
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		RestartCount: restarts,
		LostTask:     lostTask,
		Timestamp:    time.Now(),
	})
	m.cfg.Logger.Warn("restarted %s (restart %d, lost task %q)", agent.Name, restarts, lostTask)
}

// retire marks an agent permanently failed and raises a health alert.
func (m *Monitor) retire(agent *pool.Agent) {
	lostTask, err := m.pool.MarkFailed(agent.ID)
	if err != nil {
		m.cfg.Logger.Error("retire agent %d: %v", agent.ID, err)
		return
	}
	m.failLostTask(lostTask, agent.ID)

	m.publish(events.TopicAgent, events.AgentLostEvent{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Timestamp: time.Now(),
	})
	m.publish(events.TopicAgent, events.HealthAlertEvent{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Reason:    "restart budget exhausted",
		Timestamp: time.Now(),
	})
	m.cfg.Logger.Error("agent %s retired: restart budget exhausted", agent.Name)
}

func (m *Monitor) failLostTask(taskID string, agentID int) {
	if taskID == "" {
		return
	}
	if err := m.graph.MarkFailed(taskID, reasonAgentLost); err != nil {
		// The orchestrator collected a result for it first; nothing lost.
		m.cfg.Logger.Warn("lost task %s already terminal: %v", taskID, err)
		return
	}
	m.publish(events.TopicTask, events.TaskFailedEvent{
		ID:        taskID,
		AgentID:   agentID,
		Reason:    reasonAgentLost,
		Timestamp: time.Now(),
	})
}

func (m *Monitor) nextDelay(agentID int) time.Duration {
	bo, ok := m.delays[agentID]
	if !ok {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.MaxInterval = time.Minute
		bo.MaxElapsedTime = 0 // never give up on pacing; the budget gives up
		m.delays[agentID] = bo
	}
	return bo.NextBackOff()
}

func (m *Monitor) publish(topic string, event events.Event) {
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(topic, event)
	}
}
