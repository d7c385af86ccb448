package pool

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewPoolNames(t *testing.T) {
	p := New(3, []string{"builder", "tester"}, 5)

	agents := p.Agents()
	if len(agents) != 3 {
		t.Fatalf("pool size = %d, want 3", len(agents))
	}
	if agents[0].Name != "builder" || agents[1].Name != "tester" {
		t.Errorf("names = %q, %q, want configured names", agents[0].Name, agents[1].Name)
	}
	if agents[2].Name != "agent-2" {
		t.Errorf("name = %q, want generated agent-2", agents[2].Name)
	}
	for _, a := range agents {
		if a.State != StateIdle {
			t.Errorf("agent %d starts %s, want idle", a.ID, a.State)
		}
	}
}

func TestAssignRelease(t *testing.T) {
	p := New(2, nil, 5)

	if err := p.Assign(0, "T1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Double assignment must be rejected atomically.
	if err := p.Assign(0, "T2"); !errors.Is(err, ErrAgentBusy) {
		t.Errorf("second assign error = %v, want ErrAgentBusy", err)
	}

	a, _ := p.Get(0)
	if a.State != StateWorking || a.CurrentTask != "T1" {
		t.Errorf("agent 0 = %s/%q, want working/T1", a.State, a.CurrentTask)
	}

	if got := len(p.Idle()); got != 1 {
		t.Errorf("idle count = %d, want 1", got)
	}

	// Releasing with a stale task ID must not return the agent to idle.
	if err := p.Release(0, "T-other", OutcomeCompleted); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	a, _ = p.Get(0)
	if a.State != StateWorking {
		t.Errorf("stale release changed state to %s", a.State)
	}

	if err := p.Release(0, "T1", OutcomeCompleted); err != nil {
		t.Fatalf("release: %v", err)
	}
	a, _ = p.Get(0)
	if a.State != StateIdle || a.CurrentTask != "" || a.TasksCompleted != 1 {
		t.Errorf("after release: %s/%q/%d completed", a.State, a.CurrentTask, a.TasksCompleted)
	}
}

func TestAssignUnknownAgent(t *testing.T) {
	p := New(1, nil, 5)
	if err := p.Assign(7, "T1"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("error = %v, want ErrUnknownAgent", err)
	}
}

func TestConcurrentAssignSingleWinner(t *testing.T) {
	p := New(1, nil, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := p.Assign(0, fmt.Sprintf("T%d", i)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d concurrent assigns won, want exactly 1", wins)
	}
}

func TestHeartbeatStaleness(t *testing.T) {
	p := New(1, nil, 5)
	now := time.Now()

	if err := p.RecordHeartbeat(0, now); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if p.IsStale(0, now.Add(10*time.Second), 30*time.Second) {
		t.Error("agent stale 10s after heartbeat with 30s timeout")
	}
	if !p.IsStale(0, now.Add(31*time.Second), 30*time.Second) {
		t.Error("agent not stale 31s after heartbeat with 30s timeout")
	}

	// Heartbeats never move backward.
	if err := p.RecordHeartbeat(0, now.Add(-time.Minute)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if p.IsStale(0, now.Add(10*time.Second), 30*time.Second) {
		t.Error("stale after an out-of-order older heartbeat")
	}
}

func TestRefreshIdleOnlyTouchesIdleAgents(t *testing.T) {
	p := New(2, nil, 5)
	if err := p.Assign(1, "T1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	future := time.Now().Add(time.Hour)
	p.RefreshIdle(future)

	idle, _ := p.Get(0)
	working, _ := p.Get(1)
	if !idle.LastHeartbeat.Equal(future) {
		t.Error("idle agent heartbeat not refreshed")
	}
	if working.LastHeartbeat.Equal(future) {
		t.Error("working agent heartbeat refreshed by idle sweep")
	}
}

func TestRestartBudget(t *testing.T) {
	const maxRestarts = 3
	p := New(1, nil, maxRestarts)

	for i := 1; i <= maxRestarts; i++ {
		if err := p.Assign(0, fmt.Sprintf("T%d", i)); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
		lost, restarts, err := p.Restart(0)
		if err != nil {
			t.Fatalf("restart %d: %v", i, err)
		}
		if lost != fmt.Sprintf("T%d", i) {
			t.Errorf("restart %d lost task = %q", i, lost)
		}
		if restarts != i {
			t.Errorf("restart count = %d, want %d", restarts, i)
		}
		a, _ := p.Get(0)
		if a.State != StateIdle || a.CurrentTask != "" {
			t.Errorf("after restart %d: %s/%q, want idle with no task", i, a.State, a.CurrentTask)
		}
	}

	// Budget exhausted: the signal comes back instead of a restart.
	_, restarts, err := p.Restart(0)
	if !errors.Is(err, ErrRestartBudget) {
		t.Fatalf("error = %v, want ErrRestartBudget", err)
	}
	if restarts != maxRestarts {
		t.Errorf("restart count = %d, want unchanged %d", restarts, maxRestarts)
	}
}

func TestMarkFailedExcludesAgent(t *testing.T) {
	p := New(2, nil, 5)
	if err := p.Assign(0, "T1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	lost, err := p.MarkFailed(0)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if lost != "T1" {
		t.Errorf("lost task = %q, want T1", lost)
	}

	idle := p.Idle()
	if len(idle) != 1 || idle[0].ID != 1 {
		t.Errorf("idle agents = %v, failed agent must be excluded", idle)
	}

	// A failed agent is out of the run: never stale, release is a no-op.
	if p.IsStale(0, time.Now().Add(time.Hour), time.Second) {
		t.Error("permanently failed agent reported stale")
	}
	if err := p.Release(0, "T1", OutcomeCompleted); err != nil {
		t.Errorf("release of failed agent: %v", err)
	}
	a, _ := p.Get(0)
	if a.State != StateFailed {
		t.Errorf("state = %s, want failed to stick", a.State)
	}
}

func TestCounts(t *testing.T) {
	p := New(3, nil, 5)
	p.Assign(0, "T1")
	p.MarkFailed(2)

	counts := p.Counts()
	if counts[StateIdle] != 1 || counts[StateWorking] != 1 || counts[StateFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
