// Package executor runs exactly one assigned task to a terminal outcome.
// It is the only place the external TaskHandler is invoked, and the only
// place handler failures, panics, and timeouts are converted into plain
// outcomes; nothing thrown on the other side of the handler boundary can
// crash the scheduling loop.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/foreman/internal/handler"
	"github.com/aristath/foreman/internal/logging"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

// ReasonTimeout is the failure detail for tasks that exceeded their
// timeout.
const ReasonTimeout = "timeout"

// Outcome is the terminal result of one execution.
type Outcome struct {
	TaskID   string
	AgentID  int
	Output   string
	Err      error // nil on success
	Reason   string
	Duration time.Duration
}

// Success reports whether the task completed.
func (o Outcome) Success() bool { return o.Err == nil }

// Config configures an Executor.
type Config struct {
	Handler           handler.TaskHandler
	Pool              *pool.Pool
	DefaultTimeout    time.Duration // per-task fallback when the task has none
	HeartbeatInterval time.Duration
	Logger            logging.Logger
}

// Executor executes tasks for agents.
type Executor struct {
	cfg      Config
	breakers *BreakerRegistry
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}
	return &Executor{
		cfg:      cfg,
		breakers: NewBreakerRegistry(cfg.Logger),
	}
}

// Execute runs the task on behalf of the agent and returns its outcome.
// For the duration of the call the agent's heartbeat is refreshed on a
// fixed cadence, so a slow but alive handler never looks stale.
func (e *Executor) Execute(ctx context.Context, agentID int, task *scheduler.Task) Outcome {
	start := time.Now()
	outcome := Outcome{TaskID: task.ID, AgentID: agentID}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stopHeartbeat := e.startHeartbeat(ctx, agentID)
	defer stopHeartbeat()

	result, err := e.invoke(ctx, task)
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Err = err
		outcome.Reason = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			outcome.Reason = ReasonTimeout
			outcome.Err = fmt.Errorf("task %s exceeded timeout %s", task.ID, timeout)
		}
		return outcome
	}

	outcome.Output = result.Output
	return outcome
}

// invoke calls the handler through the component's circuit breaker,
// converting panics into errors.
func (e *Executor) invoke(ctx context.Context, task *scheduler.Task) (result handler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	cb := e.breakers.Get(task.Component)
	res, err := cb.Execute(func() (any, error) {
		return e.cfg.Handler.Run(ctx, task.Component, handler.Payload{
			TaskID:      task.ID,
			Name:        task.Name,
			Description: task.Description,
			DepCount:    len(task.DependsOn),
		})
	})
	if err != nil {
		// Prefer the context error so timeouts are reported as such even
		// when the handler wraps them.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return handler.Result{}, ctxErr
		}
		return handler.Result{}, err
	}

	return res.(handler.Result), nil
}

// startHeartbeat refreshes the agent's heartbeat until the returned stop
// function is called or ctx is done.
func (e *Executor) startHeartbeat(ctx context.Context, agentID int) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.cfg.Pool.RecordHeartbeat(agentID, time.Now()); err != nil {
					e.cfg.Logger.Warn("heartbeat for agent %d: %v", agentID, err)
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
