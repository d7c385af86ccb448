package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.foreman/config.json
// Project: .foreman/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".foreman", "config.json")
	projectPath := filepath.Join(".foreman", "config.json")
	return Load(globalPath, projectPath)
}

// fileConfig mirrors Config with pointer fields, so a file that sets only
// num_agents leaves every other layer's values alone.
type fileConfig struct {
	NumAgents           *int                     `json:"num_agents"`
	AgentNames          []string                 `json:"agent_names"`
	MaxRestarts         *int                     `json:"max_restarts"`
	HeartbeatInterval   *Duration                `json:"heartbeat_interval"`
	HeartbeatTimeout    *Duration                `json:"heartbeat_timeout"`
	HealthCheckInterval *Duration                `json:"health_check_interval"`
	PollInterval        *Duration                `json:"poll_interval"`
	TaskTimeout         *Duration                `json:"task_timeout"`
	DrainTimeout        *Duration                `json:"drain_timeout"`
	LogFile             *string                  `json:"log_file"`
	HistoryDB           *string                  `json:"history_db"`
	Commands            map[string]CommandConfig `json:"commands"`
}

// mergeConfigFile reads a JSON config file and overlays its set fields
// onto the base config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded fileConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.NumAgents != nil {
		base.NumAgents = *loaded.NumAgents
	}
	if loaded.AgentNames != nil {
		base.AgentNames = loaded.AgentNames
	}
	if loaded.MaxRestarts != nil {
		base.MaxRestarts = *loaded.MaxRestarts
	}
	if loaded.HeartbeatInterval != nil {
		base.HeartbeatInterval = *loaded.HeartbeatInterval
	}
	if loaded.HeartbeatTimeout != nil {
		base.HeartbeatTimeout = *loaded.HeartbeatTimeout
	}
	if loaded.HealthCheckInterval != nil {
		base.HealthCheckInterval = *loaded.HealthCheckInterval
	}
	if loaded.PollInterval != nil {
		base.PollInterval = *loaded.PollInterval
	}
	if loaded.TaskTimeout != nil {
		base.TaskTimeout = *loaded.TaskTimeout
	}
	if loaded.DrainTimeout != nil {
		base.DrainTimeout = *loaded.DrainTimeout
	}
	if loaded.LogFile != nil {
		base.LogFile = *loaded.LogFile
	}
	if loaded.HistoryDB != nil {
		base.HistoryDB = *loaded.HistoryDB
	}
	if base.Commands == nil && len(loaded.Commands) > 0 {
		base.Commands = make(map[string]CommandConfig)
	}
	for component, cmd := range loaded.Commands {
		base.Commands[component] = cmd
	}

	return nil
}
