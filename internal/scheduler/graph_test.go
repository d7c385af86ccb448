package scheduler

import (
	"errors"
	"strings"
	"testing"
)

// TestGraphValidate tests graph validation with various structures.
func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantErr     error
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A"})
				g.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				g.AddTask(&Task{ID: "C", DependsOn: []string{"B"}})
				return g
			},
		},
		{
			name: "valid diamond",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A"})
				g.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				g.AddTask(&Task{ID: "C", DependsOn: []string{"A"}})
				g.AddTask(&Task{ID: "D", DependsOn: []string{"B", "C"}})
				return g
			},
		},
		{
			name: "single task no deps",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A"})
				return g
			},
		},
		{
			name: "direct cycle",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				g.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				return g
			},
			wantErr: ErrCyclicDependency,
		},
		{
			name: "transitive cycle",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				g.AddTask(&Task{ID: "B", DependsOn: []string{"C"}})
				g.AddTask(&Task{ID: "C", DependsOn: []string{"A"}})
				return g
			},
			wantErr: ErrCyclicDependency,
		},
		{
			name: "self-loop",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A", DependsOn: []string{"A"}})
				return g
			},
			wantErr: ErrCyclicDependency,
		},
		{
			name: "missing dependency",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A", DependsOn: []string{"nonexistent"}})
				return g
			},
			wantErr:     ErrUnknownDependency,
			errContains: "nonexistent",
		},
		{
			name: "disconnected components",
			setup: func() *Graph {
				g := NewGraph()
				g.AddTask(&Task{ID: "A"})
				g.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				g.AddTask(&Task{ID: "C"})
				g.AddTask(&Task{ID: "D", DependsOn: []string{"C"}})
				return g
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			order, err := g.Validate()

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(order) != g.Len() {
				t.Errorf("order has %d ids, want %d", len(order), g.Len())
			}
			// Every task must appear after all of its dependencies.
			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, task := range g.Tasks() {
				for _, depID := range task.DependsOn {
					if pos[depID] > pos[task.ID] {
						t.Errorf("task %s sorted before dependency %s", task.ID, depID)
					}
				}
			}
		})
	}
}

func TestGraphAddTaskDuplicate(t *testing.T) {
	g := NewGraph()
	if err := g.AddTask(&Task{ID: "A"}); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	err := g.AddTask(&Task{ID: "A"})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("error = %v, want ErrDuplicateTask", err)
	}
}

// completeTask walks a task through its full lifecycle.
func completeTask(t *testing.T, g *Graph, taskID string, agentID int) {
	t.Helper()
	for _, status := range []Status{StatusReady} {
		if err := g.Mark(taskID, status); err != nil {
			t.Fatalf("mark %s %s: %v", taskID, status, err)
		}
	}
	if err := g.MarkAssigned(taskID, agentID); err != nil {
		t.Fatalf("assign %s: %v", taskID, err)
	}
	if err := g.Mark(taskID, StatusRunning); err != nil {
		t.Fatalf("mark %s running: %v", taskID, err)
	}
	if err := g.Mark(taskID, StatusCompleted); err != nil {
		t.Fatalf("mark %s completed: %v", taskID, err)
	}
}

func TestGraphReadyOrderAndGating(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "T1"})
	g.AddTask(&Task{ID: "T2"})
	g.AddTask(&Task{ID: "T3", DependsOn: []string{"T1", "T2"}})
	g.AddTask(&Task{ID: "T4", DependsOn: []string{"T3"}})
	if _, err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 2 || ready[0].ID != "T1" || ready[1].ID != "T2" {
		t.Fatalf("initial ready = %v, want [T1 T2]", taskIDs(ready))
	}

	// One of two dependencies done: T3 still gated.
	completeTask(t, g, "T1", 0)
	if got := taskIDs(g.Ready()); len(got) != 1 || got[0] != "T2" {
		t.Fatalf("ready after T1 = %v, want [T2]", got)
	}

	completeTask(t, g, "T2", 1)
	if got := taskIDs(g.Ready()); len(got) != 1 || got[0] != "T3" {
		t.Fatalf("ready after T1,T2 = %v, want [T3]", got)
	}

	completeTask(t, g, "T3", 0)
	completeTask(t, g, "T4", 1)

	if !g.AllCompleted() {
		t.Error("AllCompleted = false after completing every task")
	}
}

func TestGraphReadyDeterministic(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"T3", "T1", "T2"} {
		g.AddTask(&Task{ID: id})
	}

	first := taskIDs(g.Ready())
	for i := 0; i < 10; i++ {
		if got := taskIDs(g.Ready()); !equalStrings(got, first) {
			t.Fatalf("Ready order changed: %v vs %v", got, first)
		}
	}
	if !equalStrings(first, []string{"T3", "T1", "T2"}) {
		t.Errorf("Ready order = %v, want insertion order [T3 T1 T2]", first)
	}
}

func TestGraphMarkTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to ready", StatusPending, StatusReady, false},
		{"ready to assigned", StatusReady, StatusAssigned, false},
		{"assigned to running", StatusAssigned, StatusRunning, false},
		{"assigned to failed", StatusAssigned, StatusFailed, false},
		{"running to completed", StatusRunning, StatusCompleted, false},
		{"running to failed", StatusRunning, StatusFailed, false},
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"completed to running", StatusCompleted, StatusRunning, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"failed to completed", StatusFailed, StatusCompleted, true},
		{"ready to running", StatusReady, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			g.AddTask(&Task{ID: "A", Status: tt.from})

			err := g.Mark("A", tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("error = %v, want ErrInvalidTransition", err)
				}
				// Status must be untouched after a rejected transition.
				task, _ := g.Get("A")
				if task.Status != tt.from {
					t.Errorf("status mutated to %s after illegal transition", task.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGraphMarkUnknownTask(t *testing.T) {
	g := NewGraph()
	if err := g.Mark("nope", StatusReady); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("error = %v, want ErrUnknownTask", err)
	}
}

func TestGraphUnreachable(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "T1"})
	g.AddTask(&Task{ID: "T2"})
	g.AddTask(&Task{ID: "T3", DependsOn: []string{"T1", "T2"}})
	g.AddTask(&Task{ID: "T4", DependsOn: []string{"T3"}})

	// T1 fails, T2 completes: T3 and T4 are transitively doomed.
	g.Mark("T1", StatusReady)
	g.MarkAssigned("T1", 0)
	g.Mark("T1", StatusRunning)
	if err := g.MarkFailed("T1", "handler exploded"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	completeTask(t, g, "T2", 1)

	got := g.Unreachable()
	if !equalStrings(got, []string{"T3", "T4"}) {
		t.Errorf("Unreachable = %v, want [T3 T4]", got)
	}

	if g.AllCompleted() {
		t.Error("AllCompleted = true with a failed task")
	}

	task, _ := g.Get("T1")
	if task.Detail != "handler exploded" {
		t.Errorf("Detail = %q, want failure detail preserved", task.Detail)
	}
}

func TestGraphCloneIsolation(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "A", DependsOn: []string{}})

	task, _ := g.Get("A")
	task.Status = StatusFailed
	task.Detail = "mutated copy"

	fresh, _ := g.Get("A")
	if fresh.Status != StatusPending || fresh.Detail != "" {
		t.Error("mutating a returned task leaked into the graph")
	}
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
