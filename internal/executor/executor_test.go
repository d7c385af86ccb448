package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/foreman/internal/handler"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/scheduler"
)

func newTestExecutor(p *pool.Pool, h handler.TaskHandler) *Executor {
	return New(Config{
		Handler:           h,
		Pool:              p,
		DefaultTimeout:    time.Second,
		HeartbeatInterval: 5 * time.Millisecond,
	})
}

func TestExecuteSuccess(t *testing.T) {
	p := pool.New(1, nil, 5)
	e := newTestExecutor(p, handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
		return handler.Result{Output: "done " + payload.TaskID}, nil
	}))

	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config"})
	if !outcome.Success() {
		t.Fatalf("outcome error: %v", outcome.Err)
	}
	if outcome.Output != "done T1" {
		t.Errorf("output = %q", outcome.Output)
	}
	if outcome.AgentID != 0 || outcome.TaskID != "T1" {
		t.Errorf("outcome identity = agent %d task %q", outcome.AgentID, outcome.TaskID)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	p := pool.New(1, nil, 5)
	wantErr := errors.New("disk full")
	e := newTestExecutor(p, handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
		return handler.Result{}, wantErr
	}))

	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config"})
	if outcome.Success() {
		t.Fatal("expected failed outcome")
	}
	if !strings.Contains(outcome.Reason, "disk full") {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestExecutePanicCaptured(t *testing.T) {
	p := pool.New(1, nil, 5)
	e := newTestExecutor(p, handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
		panic("handler blew up")
	}))

	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config"})
	if outcome.Success() {
		t.Fatal("expected failed outcome from panic")
	}
	if !strings.Contains(outcome.Reason, "handler blew up") {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestExecuteTimeout(t *testing.T) {
	p := pool.New(1, nil, 5)
	e := New(Config{
		Handler: handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
			select {
			case <-time.After(10 * time.Second):
				return handler.Result{}, nil
			case <-ctx.Done():
				return handler.Result{}, ctx.Err()
			}
		}),
		Pool:              p,
		DefaultTimeout:    20 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config"})
	if outcome.Success() {
		t.Fatal("expected timeout failure")
	}
	if outcome.Reason != ReasonTimeout {
		t.Errorf("reason = %q, want %q", outcome.Reason, ReasonTimeout)
	}
}

func TestExecutePerTaskTimeoutOverride(t *testing.T) {
	p := pool.New(1, nil, 5)
	e := New(Config{
		Handler: handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return handler.Result{Output: "slow but fine"}, nil
			case <-ctx.Done():
				return handler.Result{}, ctx.Err()
			}
		}),
		Pool:              p,
		DefaultTimeout:    10 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	// The task's own timeout is generous enough, overriding the default.
	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config", Timeout: time.Second})
	if !outcome.Success() {
		t.Fatalf("outcome error: %v", outcome.Err)
	}
}

func TestExecuteEmitsHeartbeats(t *testing.T) {
	p := pool.New(1, nil, 5)
	before := time.Now()
	e := newTestExecutor(p, handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
		time.Sleep(40 * time.Millisecond)
		return handler.Result{}, nil
	}))

	outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: "T1", Component: "config"})
	if !outcome.Success() {
		t.Fatalf("outcome error: %v", outcome.Err)
	}

	a, err := p.Get(0)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if !a.LastHeartbeat.After(before) {
		t.Error("no heartbeat recorded during execution")
	}
}

func TestBreakerFastFailsBrokenComponent(t *testing.T) {
	p := pool.New(1, nil, 5)
	var calls atomic.Int32
	e := newTestExecutor(p, handler.Func(func(ctx context.Context, component string, payload handler.Payload) (handler.Result, error) {
		calls.Add(1)
		return handler.Result{}, errors.New("permanently broken")
	}))

	// Trip the breaker with consecutive failures, then keep going.
	for i := 0; i < 8; i++ {
		outcome := e.Execute(context.Background(), 0, &scheduler.Task{ID: fmt.Sprintf("T%d", i), Component: "broken"})
		if outcome.Success() {
			t.Fatalf("execution %d unexpectedly succeeded", i)
		}
	}

	if got := calls.Load(); got > 5 {
		t.Errorf("handler called %d times, breaker should cap at 5 consecutive failures", got)
	}

	// Another component has its own breaker, so its handler still runs.
	before := calls.Load()
	e.Execute(context.Background(), 0, &scheduler.Task{ID: "H1", Component: "healthy"})
	if calls.Load() != before+1 {
		t.Error("fresh component was fast-failed by another component's breaker")
	}
}
