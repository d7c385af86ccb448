package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// legalTransitions is the task status state machine:
// pending -> ready -> assigned -> running -> {completed | failed}.
// assigned -> failed covers an agent lost before its handler started.
var legalTransitions = map[Status][]Status{
	StatusPending:  {StatusReady},
	StatusReady:    {StatusAssigned},
	StatusAssigned: {StatusRunning, StatusFailed},
	StatusRunning:  {StatusCompleted, StatusFailed},
}

// Graph holds the authoritative collection of tasks and their dependency
// edges. It is the single source of truth for task status: only the
// orchestrator mutates it (the health monitor indirectly, through the same
// Mark path). Reads return clones, so callers never alias internal state.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string            // insertion order, keeps Ready deterministic
	dependents map[string][]string // taskID -> tasks that depend on it
}

// NewGraph creates an empty task graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask registers a task. Dependency existence is deliberately not
// checked here; the graph is validated as a whole by Validate once fully
// defined.
func (g *Graph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
	}

	t := cloneTask(task)
	t.AssignedAgent = NoAgent
	g.tasks[task.ID] = t
	g.order = append(g.order, task.ID)

	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	return nil
}

// Validate checks that every dependency is registered and that the graph is
// acyclic, returning a topological order of task IDs. It must pass before
// scheduling begins.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, taskID := range g.order {
		for _, depID := range g.tasks[taskID].DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Root task: edge from nil so it still appears in the sort.
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependency, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// A task missing from the sort means its only edges were inside a cycle.
	if len(order) != len(g.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range g.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("%w: tasks %s absent from topological order", ErrCyclicDependency, strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns clones of all pending tasks whose dependencies have all
// completed, in insertion order. The tasks themselves stay pending until
// the caller marks them.
func (g *Graph) Ready() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status != StatusPending {
			continue
		}
		if g.depsCompleted(task) {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

func (g *Graph) depsCompleted(task *Task) bool {
	for _, depID := range task.DependsOn {
		dep, exists := g.tasks[depID]
		if !exists || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Mark transitions a task's status. Illegal transitions return
// ErrInvalidTransition and leave the task untouched.
func (g *Graph) Mark(taskID string, status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mark(taskID, status)
}

func (g *Graph) mark(taskID string, status Status) error {
	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}

	legal := false
	for _, next := range legalTransitions[task.Status] {
		if next == status {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: task %q %s -> %s", ErrInvalidTransition, taskID, task.Status, status)
	}

	task.Status = status
	if status.Terminal() && task.CompletedAt.IsZero() {
		task.CompletedAt = time.Now()
	}
	return nil
}

// MarkAssigned claims a task for an agent: ready -> assigned, records the
// agent and the start timestamp.
func (g *Graph) MarkAssigned(taskID string, agentID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mark(taskID, StatusAssigned); err != nil {
		return err
	}
	task := g.tasks[taskID]
	task.AssignedAgent = agentID
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}
	return nil
}

// MarkFailed transitions a task to failed and records the failure detail.
func (g *Graph) MarkFailed(taskID, detail string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mark(taskID, StatusFailed); err != nil {
		return err
	}
	g.tasks[taskID].Detail = detail
	return nil
}

// AllCompleted reports whether every task has completed. A single failed
// task makes this permanently false.
func (g *Graph) AllCompleted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.tasks {
		if task.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// InFlight returns the number of tasks currently assigned or running.
func (g *Graph) InFlight() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, task := range g.tasks {
		if task.Status == StatusAssigned || task.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Unreachable returns, in insertion order, the IDs of pending tasks that
// can never become ready because a direct or transitive dependency failed.
func (g *Graph) Unreachable() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doomed := make(map[string]bool)
	// Fixed point: a pending task is doomed if any dependency failed or is
	// itself doomed. The graph is acyclic, so this converges.
	for changed := true; changed; {
		changed = false
		for _, taskID := range g.order {
			task := g.tasks[taskID]
			if task.Status != StatusPending || doomed[taskID] {
				continue
			}
			for _, depID := range task.DependsOn {
				dep := g.tasks[depID]
				if dep.Status == StatusFailed || doomed[depID] {
					doomed[taskID] = true
					changed = true
					break
				}
			}
		}
	}

	var ids []string
	for _, taskID := range g.order {
		if doomed[taskID] {
			ids = append(ids, taskID)
		}
	}
	return ids
}

// Get returns a clone of the task by ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns clones of all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, taskID := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[taskID]))
	}
	return tasks
}

// Counts returns the number of tasks per status.
func (g *Graph) Counts() map[Status]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[Status]int)
	for _, task := range g.tasks {
		counts[task.Status]++
	}
	return counts
}

// Len returns the total number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}
