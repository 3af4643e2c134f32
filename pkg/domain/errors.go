package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrThreadNotFound is returned when a thread has no checkpoints.
var ErrThreadNotFound = errors.New("thread not found")

// ErrCheckpointConflict is returned when a checkpoint step is not greater than the latest stored step.
var ErrCheckpointConflict = errors.New("checkpoint step conflict")

// ErrGraphNotFound is returned when a graph name is not registered.
var ErrGraphNotFound = errors.New("graph not found")

// ErrorKind classifies run failures.
type ErrorKind string

const (
	KindSchema             ErrorKind = "schema"
	KindUnknownTool        ErrorKind = "unknown_tool"
	KindGraphIntegrity     ErrorKind = "graph_integrity"
	KindStepBudgetExceeded ErrorKind = "step_budget_exceeded"
	KindCapability         ErrorKind = "capability"
	KindCancelled          ErrorKind = "cancelled"
	KindInternal           ErrorKind = "internal"
)

// SchemaError reports a delta incompatible with a field's reducer.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on field %q: %s", e.Field, e.Reason)
}

// UnknownToolError reports a tool call naming an unregistered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// GraphIntegrityError reports dangling references in a graph.
type GraphIntegrityError struct {
	Graph    string
	Problems []string
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("graph %q integrity: %s", e.Graph, strings.Join(e.Problems, "; "))
}

// StepBudgetExceededError reports a run that did not reach the terminal sentinel in time.
type StepBudgetExceededError struct {
	Limit int
}

func (e *StepBudgetExceededError) Error() string {
	return fmt.Sprintf("step budget of %d exceeded", e.Limit)
}

// CapabilityError wraps a failure of a model or tool collaborator.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// RunError is returned by a failed run. It names where the run stopped.
type RunError struct {
	ThreadID string
	Step     int
	Node     string
	Kind     ErrorKind
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed on thread %s at step %d (node %s, %s): %v", e.ThreadID, e.Step, e.Node, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var (
		runErr    *RunError
		schemaErr *SchemaError
		toolErr   *UnknownToolError
		graphErr  *GraphIntegrityError
		budgetErr *StepBudgetExceededError
		capErr    *CapabilityError
	)
	switch {
	case errors.As(err, &runErr):
		return runErr.Kind
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.As(err, &toolErr):
		return KindUnknownTool
	case errors.As(err, &graphErr):
		return KindGraphIntegrity
	case errors.As(err, &budgetErr):
		return KindStepBudgetExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &capErr):
		return KindCapability
	default:
		return KindInternal
	}
}
