package runtime

import (
	"context"
	"slices"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
)

// Subgraph runs a whole graph as a single node of a parent graph. Each invocation
// is an ephemeral inner run that starts at the inner entry node and ends at its
// terminal sentinel; only the parent run is checkpointed.
//
// The parent receives the difference between its state and the inner result. For
// append fields, elements with an identity are matched by identity; an element
// without one that the inner graph rewrites in place (only possible when the inner
// schema replaces that field) reaches the parent as an additional element.
type Subgraph struct {
	inner    *graph.Graph
	exec     *Executor
	preserve bool
}

// SubgraphOption configures a Subgraph.
type SubgraphOption func(*Subgraph)

// PreserveAttribution keeps the names the inner nodes gave their messages and only
// fills unnamed ones with the subgraph name.
func PreserveAttribution() SubgraphOption {
	return func(s *Subgraph) {
		s.preserve = true
	}
}

// NewSubgraph wraps g. Inner runs use the budget, hooks and middleware of exec.
func NewSubgraph(g *graph.Graph, exec *Executor, opts ...SubgraphOption) *Subgraph {
	s := &Subgraph{inner: g, exec: exec}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements graph.Describer.
func (s *Subgraph) Kind() domain.NodeKind { return domain.KindSubgraph }

// Capability implements graph.Describer.
func (s *Subgraph) Capability() string { return s.inner.Name() }

// Graph returns the wrapped graph.
func (s *Subgraph) Graph() *graph.Graph { return s.inner }

// Execute runs the inner graph on a copy of state and returns what it added,
// with new messages attributed to this node.
func (s *Subgraph) Execute(ctx context.Context, state domain.State) (graph.Result, error) {
	info := graph.RunInfoFrom(ctx)
	namespace := append(slices.Clone(info.Namespace), info.Node)

	var forward func(domain.StepEvent) bool
	if info.Observe != nil {
		forward = func(ev domain.StepEvent) bool {
			info.Observe(ev)
			return true
		}
	}

	out, err := s.exec.Stream(ctx, Request{
		Graph:     s.inner,
		ThreadID:  info.ThreadID,
		Input:     state.Clone(),
		Namespace: namespace,
	}, forward)
	if err != nil {
		return graph.Result{}, err
	}

	schema := info.Schema
	if schema == nil {
		schema = domain.MessagesSchema()
	}
	delta := domain.Diff(schema, state, out.State)
	if msgs, ok := delta[domain.MessagesKey].([]domain.Message); ok && info.Node != "" {
		delta[domain.MessagesKey] = s.attribute(msgs, info.Node)
	}
	return graph.Result{Delta: delta}, nil
}

func (s *Subgraph) attribute(msgs []domain.Message, name string) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		if m.Role == domain.RoleAssistant && (!s.preserve || m.Name == "") {
			m.Name = name
		}
		out[i] = m
	}
	return out
}
