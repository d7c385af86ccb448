package health

import (
	"testing"
	"time"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

func newFixture(t *testing.T, maxRestarts int) (*Monitor, *pool.Pool, *scheduler.Graph, *events.Bus) {
	t.Helper()
	g := scheduler.NewGraph()
	if err := g.AddTask(&scheduler.Task{ID: "A", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	agents := pool.New(2, nil, maxRestarts)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	m := NewMonitor(Config{
		HeartbeatTimeout: 30 * time.Second,
		CheckInterval:    10 * time.Second,
		Bus:              bus,
	}, agents, g)
	return m, agents, g, bus
}

func startTask(t *testing.T, g *scheduler.Graph, agents *pool.Pool, taskID string, agentID int) {
	t.Helper()
	if err := agents.Assign(agentID, taskID); err != nil {
		t.Fatal(err)
	}
	for _, s := range []scheduler.Status{scheduler.StatusReady, scheduler.StatusAssigned, scheduler.StatusRunning} {
		var err error
		if s == scheduler.StatusAssigned {
			err = g.MarkAssigned(taskID, agentID)
		} else {
			err = g.Mark(taskID, s)
		}
		if err != nil {
			t.Fatalf("mark %v: %v", s, err)
		}
	}
}

func TestSweepRestartsStaleWorkingAgent(t *testing.T) {
	m, agents, g, bus := newFixture(t, 5)
	sub := bus.Subscribe(events.TopicAgent, 8)
	startTask(t, g, agents, "A", 0)

	m.Sweep(time.Now().Add(time.Minute))

	a, err := agents.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if a.State != pool.StateIdle {
		t.Fatalf("agent state = %v, want idle after restart", a.State)
	}
	if a.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", a.RestartCount)
	}

	task, ok := g.Get("A")
	if !ok {
		t.Fatal("task A missing")
	}
	if task.Status != scheduler.StatusFailed {
		t.Fatalf("lost task status = %v, want failed", task.Status)
	}

	select {
	case ev := <-sub:
		restarted, ok := ev.(events.AgentRestartedEvent)
		if !ok {
			t.Fatalf("event = %T, want AgentRestartedEvent", ev)
		}
		if restarted.LostTask != "A" || restarted.RestartCount != 1 {
			t.Fatalf("event = %+v", restarted)
		}
	case <-time.After(time.Second):
		t.Fatal("no agent event published")
	}
}

func TestSweepIgnoresHealthyAgents(t *testing.T) {
	m, agents, g, _ := newFixture(t, 5)
	startTask(t, g, agents, "A", 0)
	if err := agents.RecordHeartbeat(0, time.Now()); err != nil {
		t.Fatal(err)
	}

	m.Sweep(time.Now().Add(5 * time.Second))

	a, _ := agents.Get(0)
	if a.State != pool.StateWorking || a.RestartCount != 0 {
		t.Fatalf("healthy agent touched: %+v", a)
	}
}

func TestSweepIdleAgentsNeverGoStale(t *testing.T) {
	m, agents, _, _ := newFixture(t, 5)

	// Sweeps keep refreshing idle heartbeats, so long gaps between them
	// never trigger a restart.
	now := time.Now()
	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		m.Sweep(now)
	}
	for _, a := range agents.Agents() {
		if a.RestartCount != 0 || a.State != pool.StateIdle {
			t.Fatalf("idle agent restarted: %+v", a)
		}
	}
}

func TestSweepRetiresAgentAfterBudget(t *testing.T) {
	m, agents, g, bus := newFixture(t, 1)
	sub := bus.Subscribe(events.TopicAgent, 16)
	startTask(t, g, agents, "A", 0)

	// First stale sweep spends the single restart; the second retires.
	now := time.Now().Add(time.Minute)
	m.Sweep(now)
	// Keep only the working agent stale: the agent never heartbeats again
	// and stays beyond the hold-off window on the next sweep.
	if err := agents.Assign(0, "A"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Minute)
	m.Sweep(now)

	a, _ := agents.Get(0)
	if a.State != pool.StateFailed {
		t.Fatalf("agent state = %v, want failed after budget", a.State)
	}
	if a.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", a.RestartCount)
	}

	var sawAlert, sawLost bool
	timeout := time.After(time.Second)
	for !sawAlert || !sawLost {
		select {
		case ev := <-sub:
			switch ev.(type) {
			case events.HealthAlertEvent:
				sawAlert = true
			case events.AgentLostEvent:
				sawLost = true
			}
		case <-timeout:
			t.Fatalf("alert=%v lost=%v, want both", sawAlert, sawLost)
		}
	}

	// The retired agent stays out of every later sweep.
	m.Sweep(now.Add(time.Hour))
	a, _ = agents.Get(0)
	if a.RestartCount != 1 {
		t.Fatal("retired agent restarted again")
	}
}

func TestSweepHoldOffPacesRestarts(t *testing.T) {
	m, agents, g, _ := newFixture(t, 5)
	startTask(t, g, agents, "A", 0)

	now := time.Now().Add(time.Minute)
	m.Sweep(now)
	a, _ := agents.Get(0)
	if a.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", a.RestartCount)
	}

	// Stale again immediately, but inside the hold-off window: no restart.
	if err := agents.Assign(0, "A"); err != nil {
		t.Fatal(err)
	}
	m.Sweep(now.Add(time.Millisecond))
	a, _ = agents.Get(0)
	if a.RestartCount != 1 {
		t.Fatalf("restart count = %d, hold-off ignored", a.RestartCount)
	}
}

func TestLostTaskAlreadyTerminalIsLeftAlone(t *testing.T) {
	m, agents, g, _ := newFixture(t, 5)
	startTask(t, g, agents, "A", 0)
	if err := g.Mark("A", scheduler.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	m.Sweep(time.Now().Add(time.Minute))

	task, _ := g.Get("A")
	if task.Status != scheduler.StatusCompleted {
		t.Fatalf("task status = %v, completed result was overwritten", task.Status)
	}
}
