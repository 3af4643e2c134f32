package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// ToolNode executes the tool calls requested by the last message.
type ToolNode struct {
	tools       ports.ToolInvoker
	timeout     time.Duration
	concurrency int
}

// ToolOption configures a ToolNode.
type ToolOption func(*ToolNode)

// WithToolTimeout bounds every tool invocation.
func WithToolTimeout(d time.Duration) ToolOption {
	return func(t *ToolNode) { t.timeout = d }
}

// WithConcurrency limits how many calls of one message run at once. Zero means unlimited.
func WithConcurrency(n int) ToolOption {
	return func(t *ToolNode) { t.concurrency = n }
}

// NewToolNode creates a tool node dispatching to tools.
func NewToolNode(tools ports.ToolInvoker, opts ...ToolOption) *ToolNode {
	t := &ToolNode{tools: tools}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind implements Describer.
func (t *ToolNode) Kind() domain.NodeKind { return domain.KindTool }

// Capability implements Describer.
func (t *ToolNode) Capability() string {
	names := make([]string, 0)
	for _, s := range t.tools.Specs() {
		names = append(names, s.Name)
	}
	return strings.Join(names, ",")
}

// Execute implements Node. Calls run concurrently; results are appended in request
// order, and a failed call yields an error result without affecting the others.
func (t *ToolNode) Execute(ctx context.Context, state domain.State) (Result, error) {
	last, ok := state.LastMessage()
	if !ok || !last.HasToolCalls() {
		return Result{}, nil
	}

	results := make([]domain.Message, len(last.ToolCalls))
	var g errgroup.Group
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, call := range last.ToolCalls {
		g.Go(func() error {
			results[i] = t.invoke(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		results[i].ID = "tool_" + uuid.NewString()
	}
	return Update(results...), nil
}

func (t *ToolNode) invoke(ctx context.Context, call domain.ToolCall) (msg domain.Message) {
	info := RunInfoFrom(ctx)
	event := &domain.ToolEvent{
		ThreadID: info.ThreadID,
		Node:     info.Node,
		CallID:   call.ID,
		ToolName: call.Name,
		Args:     call.Args,
	}
	if info.Hooks.OnToolCall != nil {
		info.Hooks.OnToolCall(ctx, event)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			msg = domain.ToolMessage(call.ID, call.Name, fmt.Sprintf("Error: tool panicked: %v", r), true)
		}
		event.Duration = time.Since(start)
		event.Result = msg.Content
		event.IsError = msg.IsError
		if info.Hooks.OnToolReturn != nil {
			info.Hooks.OnToolReturn(ctx, event)
		}
	}()

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	out, err := t.tools.Invoke(callCtx, call.Name, call.Args)
	if err != nil {
		info.Logger.Debug("tool call failed", "tool", call.Name, "call_id", call.ID, "err", err)
		return domain.ToolMessage(call.ID, call.Name, "Error: "+err.Error(), true)
	}
	content, err := formatToolOutput(out)
	if err != nil {
		return domain.ToolMessage(call.ID, call.Name, "Error: "+err.Error(), true)
	}
	return domain.ToolMessage(call.ID, call.Name, content, false)
}

func formatToolOutput(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode tool output: %w", err)
		}
		return string(data), nil
	}
}
