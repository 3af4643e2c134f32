package graph

import (
	"context"
	"slices"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// DefaultRouteField is the state field where a RouterNode records its decision.
const DefaultRouteField = "next"

// RouterNode asks a Decider which member should act next.
// Answers outside the member set fail closed: the run goes to End.
type RouterNode struct {
	decider      ports.Decider
	members      []string
	field        string
	systemPrompt string
}

// RouterOption configures a RouterNode.
type RouterOption func(*RouterNode)

// WithRouteField records the decision under field instead of DefaultRouteField.
func WithRouteField(field string) RouterOption {
	return func(r *RouterNode) { r.field = field }
}

// WithRouterPrompt prepends a system instruction to the conversation given to the decider.
func WithRouterPrompt(prompt string) RouterOption {
	return func(r *RouterNode) { r.systemPrompt = prompt }
}

// NewRouterNode creates a router over members. Each member must be a node of the graph.
func NewRouterNode(decider ports.Decider, members []string, opts ...RouterOption) *RouterNode {
	r := &RouterNode{
		decider: decider,
		members: slices.Clone(members),
		field:   DefaultRouteField,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind implements Describer.
func (r *RouterNode) Kind() domain.NodeKind { return domain.KindRouter }

// Capability implements Describer.
func (r *RouterNode) Capability() string { return "decider" }

// Directives implements Director.
func (r *RouterNode) Directives() []string { return r.members }

// Options returns the closed set offered to the decider: the members plus Finish.
func (r *RouterNode) Options() []string {
	return append(slices.Clone(r.members), domain.Finish)
}

// Execute implements Node.
func (r *RouterNode) Execute(ctx context.Context, state domain.State) (Result, error) {
	history := state.Messages()
	if len(history) == 0 {
		return r.finish(), nil
	}

	prompt := history
	if r.systemPrompt != "" {
		prompt = append([]domain.Message{domain.System(r.systemPrompt)}, history...)
	}

	choice, err := r.decider.Decide(ctx, prompt, r.Options())
	if err != nil {
		return Result{}, &domain.CapabilityError{Capability: "decider", Err: err}
	}
	if choice == domain.Finish {
		return r.finish(), nil
	}
	if !slices.Contains(r.members, choice) {
		info := RunInfoFrom(ctx)
		info.Logger.Warn("router decision outside option set, finishing",
			"thread_id", info.ThreadID,
			"node", info.Node,
			"decision", choice,
		)
		return r.finish(), nil
	}
	return Result{Delta: domain.State{r.field: choice}, Next: choice}, nil
}

func (r *RouterNode) finish() Result {
	return Result{Delta: domain.State{r.field: domain.Finish}, Next: domain.End}
}
