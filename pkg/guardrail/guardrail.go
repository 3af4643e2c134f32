// Package guardrail provides a router node that checks a message against named
// criteria with a structured model and routes to a pass or a trip target.
package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/ports"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// DefaultVerdictField is the state field holding the last verdict.
const DefaultVerdictField = "guardrail"

// Rule combines failed criteria into a trip decision.
type Rule string

const (
	// TripOnAll trips only when every criterion fails.
	TripOnAll Rule = "all"
	// TripOnAny trips as soon as one criterion fails.
	TripOnAny Rule = "any"
)

// ParseRule maps "all" or "any" to a Rule.
func ParseRule(s string) (Rule, error) {
	switch Rule(strings.ToLower(s)) {
	case TripOnAll:
		return TripOnAll, nil
	case TripOnAny:
		return TripOnAny, nil
	}
	return "", fmt.Errorf("unknown guardrail rule %q (want %q or %q)", s, TripOnAll, TripOnAny)
}

// Criterion is a property the checked message should have.
type Criterion struct {
	Name        string
	Description string
}

// Verdict is the outcome of a check.
type Verdict struct {
	Tripped   bool     `mapstructure:"tripped"`
	Failed    []string `mapstructure:"failed"`
	Reasoning string   `mapstructure:"reasoning"`
	Error     string   `mapstructure:"error"`
}

// State encodes v as a state value.
func (v Verdict) State() map[string]any {
	out := map[string]any{
		"tripped":   v.Tripped,
		"failed":    append([]string{}, v.Failed...),
		"reasoning": v.Reasoning,
	}
	if v.Error != "" {
		out["error"] = v.Error
	}
	return out
}

// VerdictFrom reads the verdict stored in state under field.
func VerdictFrom(state domain.State, field string) (Verdict, bool) {
	raw, ok := state[field]
	if !ok {
		return Verdict{}, false
	}
	var v Verdict
	if err := mapstructure.Decode(raw, &v); err != nil {
		return Verdict{}, false
	}
	return v, true
}

// Node is a guardrail router.
type Node struct {
	model        ports.StructuredModel
	criteria     []Criterion
	rule         Rule
	pass, trip   string
	failOpen     bool
	instructions string
	field        string
	tripMessage  string
	subject      func(domain.State) string
}

// Option configures a Node.
type Option func(*Node)

// WithRule sets how failed criteria combine. Defaults to TripOnAny.
func WithRule(rule Rule) Option {
	return func(n *Node) { n.rule = rule }
}

// FailOpen routes to the pass target when the checker itself fails.
func FailOpen() Option {
	return func(n *Node) { n.failOpen = true }
}

// WithInstructions sets the checker's system prompt.
func WithInstructions(text string) Option {
	return func(n *Node) { n.instructions = text }
}

// WithVerdictField records the verdict under field.
func WithVerdictField(field string) Option {
	return func(n *Node) { n.field = field }
}

// WithTripMessage appends an assistant message with text when the guardrail trips.
func WithTripMessage(text string) Option {
	return func(n *Node) { n.tripMessage = text }
}

// WithSubject selects the text to check. Defaults to the last message content.
func WithSubject(fn func(domain.State) string) Option {
	return func(n *Node) { n.subject = fn }
}

// New creates a guardrail that routes to pass or trip.
func New(model ports.StructuredModel, criteria []Criterion, pass, trip string, opts ...Option) *Node {
	n := &Node{
		model:    model,
		criteria: criteria,
		rule:     TripOnAny,
		pass:     pass,
		trip:     trip,
		field:    DefaultVerdictField,
		subject: func(s domain.State) string {
			last, _ := s.LastMessage()
			return last.Content
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements graph.Describer.
func (n *Node) Kind() domain.NodeKind { return domain.KindRouter }

// Capability implements graph.Describer.
func (n *Node) Capability() string { return "guardrail" }

// Directives implements graph.Director.
func (n *Node) Directives() []string { return []string{n.pass, n.trip} }

// Schema is the structured output requested from the checker.
func (n *Node) Schema() schema.Schema {
	s := schema.Schema{"reasoning": schema.Optional(schema.String())}
	for _, c := range n.criteria {
		s[c.Name] = schema.Describe(schema.Bool(), c.Description)
	}
	return s
}

// Execute implements graph.Node.
func (n *Node) Execute(ctx context.Context, state domain.State) (graph.Result, error) {
	info := graph.RunInfoFrom(ctx)

	prompt := []domain.Message{domain.System(n.systemPrompt()), domain.Human(n.subject(state))}
	out, err := n.model.InvokeStructured(ctx, prompt, n.Schema())
	if err != nil {
		if !n.failOpen {
			return graph.Result{}, &domain.CapabilityError{Capability: "guardrail", Err: err}
		}
		info.Logger.Warn("guardrail check failed, passing", "node", info.Node, "err", err)
		return n.route(Verdict{Error: err.Error()}), nil
	}

	verdict, err := n.Evaluate(out)
	if err != nil {
		if !n.failOpen {
			return graph.Result{}, &domain.CapabilityError{Capability: "guardrail", Err: err}
		}
		info.Logger.Warn("guardrail verdict unreadable, passing", "node", info.Node, "err", err)
		return n.route(Verdict{Error: err.Error()}), nil
	}
	if verdict.Tripped {
		info.Logger.Warn("guardrail tripped", "node", info.Node, "failed", verdict.Failed, "reasoning", verdict.Reasoning)
	}
	return n.route(verdict), nil
}

// Evaluate applies the rule to a structured checker answer.
func (n *Node) Evaluate(out map[string]any) (Verdict, error) {
	var v Verdict
	if r, ok := out["reasoning"].(string); ok {
		v.Reasoning = r
	}
	for _, c := range n.criteria {
		var ok bool
		if err := mapstructure.WeakDecode(out[c.Name], &ok); err != nil {
			return Verdict{}, fmt.Errorf("criterion %q: %w", c.Name, err)
		}
		if !ok {
			v.Failed = append(v.Failed, c.Name)
		}
	}
	switch n.rule {
	case TripOnAll:
		v.Tripped = len(n.criteria) > 0 && len(v.Failed) == len(n.criteria)
	default:
		v.Tripped = len(v.Failed) > 0
	}
	return v, nil
}

func (n *Node) route(v Verdict) graph.Result {
	delta := domain.State{n.field: v.State()}
	if !v.Tripped {
		return graph.Result{Delta: delta, Next: n.pass}
	}
	if n.tripMessage != "" {
		msg := domain.AI(n.tripMessage)
		msg.Name = "guardrail"
		delta[domain.MessagesKey] = []domain.Message{msg}
	}
	return graph.Result{Delta: delta, Next: n.trip}
}

func (n *Node) systemPrompt() string {
	var b strings.Builder
	if n.instructions != "" {
		b.WriteString(n.instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Assess the text against each criterion and answer true when it holds:\n")
	for _, c := range n.criteria {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	return b.String()
}
