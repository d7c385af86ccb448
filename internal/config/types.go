// Package config loads foreman's settings from layered JSON files and
// task plans from YAML.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can say "30s" or "5m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML lets plan files use the same duration syntax.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// CommandConfig defines the shell command run for one component's tasks.
type CommandConfig struct {
	Command string   `json:"command"`        // binary name
	Args    []string `json:"args,omitempty"` // args prepended before the task env
	Dir     string   `json:"dir,omitempty"`  // working directory
}

// Config is the top-level configuration.
type Config struct {
	NumAgents           int      `json:"num_agents"`
	AgentNames          []string `json:"agent_names,omitempty"` // optional, padded with agent-N
	MaxRestarts         int      `json:"max_restarts"`
	HeartbeatInterval   Duration `json:"heartbeat_interval"` // how often working agents report in
	HeartbeatTimeout    Duration `json:"heartbeat_timeout"`
	HealthCheckInterval Duration `json:"health_check_interval"`
	PollInterval        Duration `json:"poll_interval"`
	TaskTimeout         Duration `json:"task_timeout"` // default per-task limit, plans may override
	DrainTimeout        Duration `json:"drain_timeout"`
	LogFile             string   `json:"log_file,omitempty"`
	HistoryDB           string   `json:"history_db,omitempty"`

	// Commands maps components to shell command handlers. Components with
	// no entry run the simulated handler.
	Commands map[string]CommandConfig `json:"commands,omitempty"`
}

// Validate checks the configuration for values the scheduler cannot run
// with.
func (c *Config) Validate() error {
	if c.NumAgents < 1 {
		return fmt.Errorf("num_agents must be at least 1, got %d", c.NumAgents)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts must not be negative, got %d", c.MaxRestarts)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval.Std())
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat_timeout must be positive, got %s", c.HeartbeatTimeout.Std())
	}
	if c.HeartbeatInterval >= c.HeartbeatTimeout {
		return fmt.Errorf("heartbeat_interval %s must be shorter than heartbeat_timeout %s",
			c.HeartbeatInterval.Std(), c.HeartbeatTimeout.Std())
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health_check_interval must be positive, got %s", c.HealthCheckInterval.Std())
	}
	if c.HealthCheckInterval > c.HeartbeatTimeout {
		return fmt.Errorf("health_check_interval %s exceeds heartbeat_timeout %s, stale agents would go unnoticed",
			c.HealthCheckInterval.Std(), c.HeartbeatTimeout.Std())
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval.Std())
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must not be negative, got %s", c.TaskTimeout.Std())
	}
	return nil
}
