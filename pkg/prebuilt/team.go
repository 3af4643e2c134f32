package prebuilt

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// SupervisorNode is the name of the router node in a Team graph.
const SupervisorNode = "supervisor"

// Member is a worker of a team.
type Member struct {
	Name string
	Node graph.Node
}

type teamConfig struct {
	prompt string
	field  string
}

// TeamOption configures Team.
type TeamOption func(*teamConfig)

// WithSupervisorPrompt replaces the default supervisor instructions.
func WithSupervisorPrompt(prompt string) TeamOption {
	return func(c *teamConfig) { c.prompt = prompt }
}

// WithRouteField records the supervisor decision under field.
func WithRouteField(field string) TeamOption {
	return func(c *teamConfig) { c.field = field }
}

// SupervisorPrompt is the default instruction given to a team supervisor.
func SupervisorPrompt(members []string) string {
	return fmt.Sprintf("You are a supervisor tasked with managing a conversation between the"+
		" following workers: %s. Given the following user request,"+
		" respond with the worker to act next. Each worker will perform a"+
		" task and respond with their results and status. When finished,"+
		" respond with %s.", strings.Join(members, ", "), domain.Finish)
}

// Team builds a supervised team: the supervisor picks a member or FINISH, each
// member reports back to the supervisor, and member replies carry the member name.
func Team(name string, decider ports.Decider, members []Member, opts ...TeamOption) (*graph.Graph, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("team %q has no members", name)
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}

	cfg := &teamConfig{prompt: SupervisorPrompt(names), field: graph.DefaultRouteField}
	for _, opt := range opts {
		opt(cfg)
	}

	b := graph.NewBuilder(name).
		AddNode(SupervisorNode, graph.NewRouterNode(decider, names,
			graph.WithRouterPrompt(cfg.prompt),
			graph.WithRouteField(cfg.field),
		)).
		SetEntry(SupervisorNode)
	for _, m := range members {
		b.AddNode(m.Name, &worker{name: m.Name, node: m.Node}).
			AddEdge(m.Name, SupervisorNode)
	}
	return b.Compile()
}

// worker attributes a member's replies to the member.
type worker struct {
	name string
	node graph.Node
}

func (w *worker) Kind() domain.NodeKind {
	if d, ok := w.node.(graph.Describer); ok {
		return d.Kind()
	}
	return domain.KindFunc
}

func (w *worker) Capability() string {
	if d, ok := w.node.(graph.Describer); ok {
		return d.Capability()
	}
	return ""
}

func (w *worker) Execute(ctx context.Context, state domain.State) (graph.Result, error) {
	// Nothing to work on: hand straight back to the supervisor.
	if len(state.Messages()) == 0 {
		return graph.Result{}, nil
	}
	res, err := w.node.Execute(ctx, state)
	if err != nil {
		return res, err
	}
	if msgs, ok := res.Delta[domain.MessagesKey].([]domain.Message); ok {
		named := make([]domain.Message, len(msgs))
		for i, m := range msgs {
			if m.Role == domain.RoleAssistant {
				m.Name = w.name
			}
			named[i] = m
		}
		res.Delta = res.Delta.Clone()
		res.Delta[domain.MessagesKey] = named
	}
	return res, nil
}
