package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/foreman/internal/logging"
)

// BreakerRegistry manages per-component circuit breakers around the task
// handler. A component whose handler keeps failing gets fast-failed for a
// cooling-off period instead of burning agent time; the affected tasks are
// simply marked failed like any other handler error.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      logging.Logger
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(log logging.Logger) *BreakerRegistry {
	if log == nil {
		log = logging.Nop{}
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
	}
}

// Get returns the breaker for a component, creating it on first use.
func (r *BreakerRegistry) Get(component string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[component]; ok {
		return cb
	}

	log := r.log
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        component,
		MaxRequests: 2,                // test requests allowed half-open
		Timeout:     30 * time.Second, // open duration before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("component %q circuit breaker: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation and timeouts reflect the run, not the handler.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[component] = cb
	return cb
}
