package scheduler

import "errors"

// Construction errors. All of them are fatal: the graph must be fully
// defined and acyclic before scheduling begins.
var (
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCyclicDependency  = errors.New("cyclic dependency")
)

// ErrInvalidTransition indicates an illegal status transition. It is a
// logic error surfaced to the caller, never retried.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownTask indicates a task ID not present in the graph.
var ErrUnknownTask = errors.New("unknown task")
