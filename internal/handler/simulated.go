package handler

import (
	"context"
	"fmt"
	"time"
)

// Simulated is the built-in handler used when a component has no command
// configured. It sleeps for a duration proportional to the task's
// dependency count, standing in for real build work while exercising the
// full scheduling path.
type Simulated struct {
	// BaseDelay is the cost of a dependency-free task. PerDep is added for
	// each dependency. Zero values fall back to defaults tuned for demos;
	// tests set both very low.
	BaseDelay time.Duration
	PerDep    time.Duration
}

// NewSimulated creates a simulated handler with demo timings.
func NewSimulated() *Simulated {
	return &Simulated{
		BaseDelay: 5 * time.Second,
		PerDep:    2 * time.Second,
	}
}

// Run sleeps for the computed work duration, honoring cancellation.
func (s *Simulated) Run(ctx context.Context, component string, payload Payload) (Result, error) {
	base := s.BaseDelay
	perDep := s.PerDep
	if base <= 0 {
		base = 5 * time.Second
	}
	if perDep < 0 {
		perDep = 0
	}
	work := base + time.Duration(payload.DepCount)*perDep

	select {
	case <-time.After(work):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	return Result{Output: fmt.Sprintf("%s: simulated %s build in %s", payload.TaskID, component, work)}, nil
}
