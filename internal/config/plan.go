package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/foreman/internal/scheduler"
)

// PlanTask is one task definition in a plan file.
type PlanTask struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Component   string   `yaml:"component"`
	DependsOn   []string `yaml:"depends_on"`
	Timeout     Duration `yaml:"timeout"` // overrides the config default
}

// Plan is a YAML task plan.
type Plan struct {
	Name  string     `yaml:"name"`
	Tasks []PlanTask `yaml:"tasks"`
}

// LoadPlan reads and parses a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("plan %s defines no tasks", path)
	}
	for i, task := range plan.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("plan %s: task %d has no id", path, i)
		}
	}
	return &plan, nil
}

// Graph builds the task graph for this plan. Duplicate ids, unknown
// dependencies, and cycles surface through the graph's own checks.
func (p *Plan) Graph() (*scheduler.Graph, error) {
	g := scheduler.NewGraph()
	for _, task := range p.Tasks {
		name := task.Name
		if name == "" {
			name = task.ID
		}
		err := g.AddTask(&scheduler.Task{
			ID:          task.ID,
			Name:        name,
			Description: task.Description,
			Component:   task.Component,
			DependsOn:   task.DependsOn,
			Timeout:     task.Timeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("plan task %s: %w", task.ID, err)
		}
	}
	if _, err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
