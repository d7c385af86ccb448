// Package handler defines the TaskHandler collaborator boundary: the
// scheduler hands a component tag and payload across it and gets a result
// or an error back. What happens on the other side (codegen, file writes,
// API calls) is opaque to the core.
package handler

import (
	"context"
	"fmt"
)

// Payload is the opaque per-task input forwarded to the handler.
type Payload struct {
	TaskID      string
	Name        string
	Description string
	DepCount    int
}

// Result is whatever the handler produced, summarized for logs and the
// run history.
type Result struct {
	Output string
}

// TaskHandler runs the actual work for one component.
type TaskHandler interface {
	Run(ctx context.Context, component string, payload Payload) (Result, error)
}

// Func adapts a plain function to the TaskHandler interface.
type Func func(ctx context.Context, component string, payload Payload) (Result, error)

func (f Func) Run(ctx context.Context, component string, payload Payload) (Result, error) {
	return f(ctx, component, payload)
}

// Registry routes components to handlers, with an optional fallback for
// components that have no dedicated entry.
type Registry struct {
	handlers map[string]TaskHandler
	fallback TaskHandler
}

// NewRegistry creates a registry with the given fallback. A nil fallback
// means unknown components fail.
func NewRegistry(fallback TaskHandler) *Registry {
	return &Registry{
		handlers: make(map[string]TaskHandler),
		fallback: fallback,
	}
}

// Register maps a component to a handler.
func (r *Registry) Register(component string, h TaskHandler) {
	r.handlers[component] = h
}

// Run dispatches to the component's handler or the fallback.
func (r *Registry) Run(ctx context.Context, component string, payload Payload) (Result, error) {
	if h, ok := r.handlers[component]; ok {
		return h.Run(ctx, component, payload)
	}
	if r.fallback != nil {
		return r.fallback.Run(ctx, component, payload)
	}
	return Result{}, fmt.Errorf("no handler registered for component %q", component)
}
