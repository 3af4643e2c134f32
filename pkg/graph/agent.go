package graph

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// AgentNode invokes a language model with the conversation and appends its reply.
type AgentNode struct {
	model        ports.LanguageModel
	systemPrompt string
	tools        []domain.ToolSpec
	name         string
	label        string
}

// AgentOption configures an AgentNode.
type AgentOption func(*AgentNode)

// WithSystemPrompt prepends a system instruction to every invocation.
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *AgentNode) { a.systemPrompt = prompt }
}

// WithTools advertises tools the model may call.
func WithTools(specs []domain.ToolSpec) AgentOption {
	return func(a *AgentNode) { a.tools = specs }
}

// WithAttribution stamps replies with name, for multi-agent transcripts.
func WithAttribution(name string) AgentOption {
	return func(a *AgentNode) { a.name = name }
}

// WithModelLabel sets the capability label reported in errors and descriptors.
func WithModelLabel(label string) AgentOption {
	return func(a *AgentNode) { a.label = label }
}

// NewAgentNode creates an agent node bound to model.
func NewAgentNode(model ports.LanguageModel, opts ...AgentOption) *AgentNode {
	a := &AgentNode{model: model, label: "model"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind implements Describer.
func (a *AgentNode) Kind() domain.NodeKind { return domain.KindAgent }

// Capability implements Describer.
func (a *AgentNode) Capability() string { return a.label }

// Execute implements Node.
func (a *AgentNode) Execute(ctx context.Context, state domain.State) (Result, error) {
	history := state.Messages()
	prompt := make([]domain.Message, 0, len(history)+1)
	if a.systemPrompt != "" {
		prompt = append(prompt, domain.System(a.systemPrompt))
	}
	prompt = append(prompt, history...)

	reply, err := a.model.Invoke(ctx, prompt, a.tools)
	if err != nil {
		return Result{}, &domain.CapabilityError{Capability: a.label, Err: err}
	}

	if reply.Role == "" {
		reply.Role = domain.RoleAssistant
	}
	if a.name != "" {
		reply.Name = a.name
	}
	// Tool results correlate by call id.
	reply.ToolCalls = slices.Clone(reply.ToolCalls)
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}
	return Update(reply), nil
}
