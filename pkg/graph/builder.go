package graph

import (
	"fmt"
	"slices"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Edge is an outgoing transition of a node: static when Route is nil, dynamic otherwise.
type Edge struct {
	From    string
	To      string    // Static target
	Route   RouteFunc // Dynamic routing function
	Targets []string  // Declared targets of Route
}

// Dynamic reports whether the edge is resolved by a routing function.
func (e Edge) Dynamic() bool { return e.Route != nil }

// Builder assembles a Graph. Methods record problems instead of failing; Compile reports them.
type Builder struct {
	name     string
	schema   domain.StateSchema
	nodes    map[string]Node
	order    []string
	edges    map[string]Edge
	entry    string
	problems []string
}

// NewBuilder starts a graph using the messages schema.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		schema: domain.MessagesSchema(),
		nodes:  make(map[string]Node),
		edges:  make(map[string]Edge),
	}
}

// WithSchema replaces the state schema.
func (b *Builder) WithSchema(schema domain.StateSchema) *Builder {
	b.schema = schema
	return b
}

// AddNode declares a node.
func (b *Builder) AddNode(name string, node Node) *Builder {
	switch {
	case name == "":
		b.problems = append(b.problems, "node with empty name")
		return b
	case name == domain.End:
		b.problems = append(b.problems, fmt.Sprintf("node name %q is reserved", name))
		return b
	case node == nil:
		b.problems = append(b.problems, fmt.Sprintf("node %q is nil", name))
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.problems = append(b.problems, fmt.Sprintf("duplicate node %q", name))
		return b
	}
	b.nodes[name] = node
	b.order = append(b.order, name)
	return b
}

// AddEdge adds an unconditional edge.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.addEdge(Edge{From: from, To: to})
}

// AddConditionalEdges adds a dynamic edge whose route may return any of targets or End.
func (b *Builder) AddConditionalEdges(from string, route RouteFunc, targets ...string) *Builder {
	if route == nil {
		b.problems = append(b.problems, fmt.Sprintf("conditional edge from %q has no routing function", from))
		return b
	}
	if len(targets) == 0 {
		b.problems = append(b.problems, fmt.Sprintf("conditional edge from %q declares no targets", from))
	}
	return b.addEdge(Edge{From: from, Route: route, Targets: slices.Clone(targets)})
}

func (b *Builder) addEdge(e Edge) *Builder {
	if _, exists := b.edges[e.From]; exists {
		b.problems = append(b.problems, fmt.Sprintf("node %q already has an outgoing edge", e.From))
		return b
	}
	b.edges[e.From] = e
	return b
}

// SetEntry designates the entry node.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the graph and returns an immutable Graph.
// Dangling references fail with *domain.GraphIntegrityError.
func (b *Builder) Compile() (*Graph, error) {
	problems := slices.Clone(b.problems)

	declared := func(name string) bool {
		if name == domain.End {
			return true
		}
		_, ok := b.nodes[name]
		return ok
	}

	if b.entry == "" {
		problems = append(problems, "entry node not set")
	} else if _, ok := b.nodes[b.entry]; !ok {
		problems = append(problems, fmt.Sprintf("entry node %q is not declared", b.entry))
	}

	for _, from := range sortedKeys(b.edges) {
		e := b.edges[from]
		if _, ok := b.nodes[from]; !ok {
			problems = append(problems, fmt.Sprintf("edge source %q is not declared", from))
		}
		if !e.Dynamic() && !declared(e.To) {
			problems = append(problems, fmt.Sprintf("edge %s -> %q targets an undeclared node", from, e.To))
		}
		for _, target := range e.Targets {
			if !declared(target) {
				problems = append(problems, fmt.Sprintf("conditional edge %s -> %q targets an undeclared node", from, target))
			}
		}
	}

	for _, name := range b.order {
		director, isDirector := b.nodes[name].(Director)
		if isDirector {
			for _, target := range director.Directives() {
				if !declared(target) {
					problems = append(problems, fmt.Sprintf("node %q may route to undeclared node %q", name, target))
				}
			}
		}
		if _, hasEdge := b.edges[name]; !hasEdge && !isDirector {
			problems = append(problems, fmt.Sprintf("node %q has no outgoing edge", name))
		}
	}

	if len(problems) > 0 {
		return nil, &domain.GraphIntegrityError{Graph: b.name, Problems: problems}
	}

	g := &Graph{
		name:   b.name,
		schema: b.schema,
		nodes:  make(map[string]Node, len(b.nodes)),
		order:  slices.Clone(b.order),
		edges:  make(map[string]Edge, len(b.edges)),
		entry:  b.entry,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	return g, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
