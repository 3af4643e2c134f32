package graph

import (
	"context"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Result is what a node returns: a partial state update and an optional explicit next node.
type Result struct {
	Delta domain.State
	Next  string
}

// Node is a unit of graph execution.
type Node interface {
	Execute(ctx context.Context, state domain.State) (Result, error)
}

// Func adapts a function to Node.
type Func func(ctx context.Context, state domain.State) (Result, error)

// Execute implements Node.
func (f Func) Execute(ctx context.Context, state domain.State) (Result, error) {
	return f(ctx, state)
}

// Describer is implemented by nodes that report their kind for validation and rendering.
type Describer interface {
	Kind() domain.NodeKind
	Capability() string
}

// Director is implemented by nodes that return explicit next-node directives.
// Directives lists every name the node may emit (End aside).
type Director interface {
	Directives() []string
}

// Update is a convenience for nodes that only append messages.
func Update(msgs ...domain.Message) Result {
	return Result{Delta: domain.State{domain.MessagesKey: msgs}}
}

func describe(name string, n Node) domain.NodeDescriptor {
	d := domain.NodeDescriptor{Name: name, Kind: domain.KindFunc}
	if desc, ok := n.(Describer); ok {
		d.Kind = desc.Kind()
		d.Capability = desc.Capability()
	}
	return d
}

type directed struct {
	Node
	targets []string
}

func (d directed) Directives() []string { return d.targets }

func (d directed) Kind() domain.NodeKind {
	if desc, ok := d.Node.(Describer); ok {
		return desc.Kind()
	}
	return domain.KindFunc
}

func (d directed) Capability() string {
	if desc, ok := d.Node.(Describer); ok {
		return desc.Capability()
	}
	return ""
}

// Directed declares the explicit next-node directives node may return, so that
// Compile can validate them.
func Directed(node Node, targets ...string) Node {
	return directed{Node: node, targets: targets}
}
