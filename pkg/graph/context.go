package graph

import (
	"context"
	"log/slog"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
)

// RunInfo describes the step a node is executing in. The executor attaches it to the
// context passed to Execute.
type RunInfo struct {
	ThreadID  string
	Graph     string
	Node      string
	Step      int
	Namespace []string
	Schema    domain.StateSchema
	Hooks     domain.LifecycleHooks
	Logger    *slog.Logger
	// Observe receives step events of nested runs. Nil outside an executor.
	Observe func(domain.StepEvent)
}

type runInfoKey struct{}

// WithRunInfo returns a context carrying info.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the RunInfo attached to ctx. Outside a run the zero value with a
// no-op logger is returned.
func RunInfoFrom(ctx context.Context) RunInfo {
	info, _ := ctx.Value(runInfoKey{}).(RunInfo)
	if info.Logger == nil {
		info.Logger = logging.NewNop()
	}
	return info
}
