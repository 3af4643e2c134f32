package ports

import (
	"context"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// LanguageModel produces the next assistant message for a conversation.
// Implementations must tolerate repeated calls with the same arguments.
type LanguageModel interface {
	// Invoke returns the model reply. tools lists the callables the model may request.
	Invoke(ctx context.Context, messages []domain.Message, tools []domain.ToolSpec) (domain.Message, error)
}

// StructuredModel returns output conforming to a schema instead of free text.
type StructuredModel interface {
	InvokeStructured(ctx context.Context, messages []domain.Message, out schema.Schema) (map[string]any, error)
}

// Decider picks one of options for the given conversation.
// Implementations may return a value outside options; callers must treat it as untrusted.
type Decider interface {
	Decide(ctx context.Context, messages []domain.Message, options []string) (string, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, messages []domain.Message, options []string) (string, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, messages []domain.Message, options []string) (string, error) {
	return f(ctx, messages, options)
}

// ToolInvoker executes tools by name. Tool failures are returned as errors;
// the tool node turns them into result messages.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
	// Specs describes the tools available for advertising to a model.
	Specs() []domain.ToolSpec
}
