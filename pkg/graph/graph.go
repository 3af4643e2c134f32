package graph

import (
	"fmt"
	"slices"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Graph is an immutable, validated set of nodes and edges with one entry node.
type Graph struct {
	name   string
	schema domain.StateSchema
	nodes  map[string]Node
	order  []string
	edges  map[string]Edge
	entry  string
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Schema returns the state schema used to merge deltas.
func (g *Graph) Schema() domain.StateSchema { return g.schema }

// Node returns the node declared under name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Edge returns the outgoing edge of a node.
func (g *Graph) Edge(from string) (Edge, bool) {
	e, ok := g.edges[from]
	return e, ok
}

// Nodes describes the nodes in declaration order.
func (g *Graph) Nodes() []domain.NodeDescriptor {
	out := make([]domain.NodeDescriptor, 0, len(g.order))
	for _, name := range g.order {
		d := describe(name, g.nodes[name])
		d.Targets = g.targets(name)
		out = append(out, d)
	}
	return out
}

// Edges returns the edges ordered by source node declaration.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, name := range g.order {
		if e, ok := g.edges[name]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) targets(name string) []string {
	var out []string
	if e, ok := g.edges[name]; ok {
		if e.Dynamic() {
			out = append(out, e.Targets...)
		} else {
			out = append(out, e.To)
		}
	}
	if d, ok := g.nodes[name].(Director); ok {
		for _, t := range d.Directives() {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
		if !slices.Contains(out, domain.End) {
			out = append(out, domain.End)
		}
	}
	return out
}

// Unreachable returns the nodes that cannot be reached from the entry node.
func (g *Graph) Unreachable() []string {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range g.targets(current) {
			if t == domain.End || seen[t] {
				continue
			}
			seen[t] = true
			queue = append(queue, t)
		}
	}
	var out []string
	for _, name := range g.order {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

// Resolve picks the node to run after from, given the node result and the merged state.
// An explicit directive wins over edges. Targets outside the declared set fail with
// *domain.GraphIntegrityError.
func (g *Graph) Resolve(from string, res Result, state domain.State) (string, error) {
	if res.Next != "" {
		if res.Next == domain.End || g.has(res.Next) {
			return res.Next, nil
		}
		return "", g.integrity("node %q directed to undeclared node %q", from, res.Next)
	}

	e, ok := g.edges[from]
	if !ok {
		return "", g.integrity("node %q has no outgoing edge", from)
	}
	if !e.Dynamic() {
		return e.To, nil
	}

	target := e.Route(state)
	if target == domain.End {
		return target, nil
	}
	if !slices.Contains(e.Targets, target) || !g.has(target) {
		return "", g.integrity("route from %q returned undeclared target %q", from, target)
	}
	return target, nil
}

func (g *Graph) has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) integrity(format string, args ...any) error {
	return &domain.GraphIntegrityError{Graph: g.name, Problems: []string{fmt.Sprintf(format, args...)}}
}
