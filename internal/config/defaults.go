package config

import "time"

// DefaultConfig returns the built-in configuration: twelve agents, five
// restarts per agent, health sweeps every 10s against a 30s heartbeat
// timeout.
func DefaultConfig() *Config {
	return &Config{
		NumAgents:           12,
		MaxRestarts:         5,
		HeartbeatInterval:   Duration(5 * time.Second),
		HeartbeatTimeout:    Duration(30 * time.Second),
		HealthCheckInterval: Duration(10 * time.Second),
		PollInterval:        Duration(2 * time.Second),
		TaskTimeout:         Duration(5 * time.Minute),
		DrainTimeout:        Duration(30 * time.Second),
	}
}
