package domain

import (
	"context"
	"time"
)

// StepEvent reports what a node produced during one executor step.
type StepEvent struct {
	ThreadID  string    `json:"thread_id"`
	Graph     string    `json:"graph"`
	Namespace []string  `json:"namespace,omitempty"` // Enclosing subgraph nodes, outermost first
	Step      int       `json:"step"`
	Node      string    `json:"node"`
	Delta     State     `json:"delta,omitempty"`
	Next      string    `json:"next"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeEvent represents entry to or exit from a node.
type NodeEvent struct {
	ThreadID  string        `json:"thread_id"`
	Graph     string        `json:"graph"`
	Node      string        `json:"node"`
	Kind      NodeKind      `json:"kind"`
	Step      int           `json:"step"`
	Namespace []string      `json:"namespace,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"` // Set on leave
	Err       error         `json:"-"`
}

// ToolEvent represents a single tool invocation.
type ToolEvent struct {
	ThreadID string         `json:"thread_id"`
	Node     string         `json:"node"`
	CallID   string         `json:"call_id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnCheckpoint func(context.Context, *Checkpoint)
}

// ChainHooks returns hooks that invoke each of the given hooks in order.
func ChainHooks(all ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *NodeEvent) {
			for _, h := range all {
				if h.OnNodeEnter != nil {
					h.OnNodeEnter(ctx, e)
				}
			}
		},
		OnNodeLeave: func(ctx context.Context, e *NodeEvent) {
			for _, h := range all {
				if h.OnNodeLeave != nil {
					h.OnNodeLeave(ctx, e)
				}
			}
		},
		OnToolCall: func(ctx context.Context, e *ToolEvent) {
			for _, h := range all {
				if h.OnToolCall != nil {
					h.OnToolCall(ctx, e)
				}
			}
		},
		OnToolReturn: func(ctx context.Context, e *ToolEvent) {
			for _, h := range all {
				if h.OnToolReturn != nil {
					h.OnToolReturn(ctx, e)
				}
			}
		},
		OnCheckpoint: func(ctx context.Context, cp *Checkpoint) {
			for _, h := range all {
				if h.OnCheckpoint != nil {
					h.OnCheckpoint(ctx, cp)
				}
			}
		},
	}
}
