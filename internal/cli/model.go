package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/aretw0/agentgraph/internal/config"
	"github.com/aretw0/agentgraph/pkg/adapters/openai"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// Model is what the demo graphs need from a provider.
type Model interface {
	Invoke(ctx context.Context, messages []domain.Message, tools []domain.ToolSpec) (domain.Message, error)
	InvokeStructured(ctx context.Context, messages []domain.Message, out schema.Schema) (map[string]any, error)
}

// NewModel builds the configured provider.
func NewModel(cfg config.ModelConfig, logger *slog.Logger) (Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithLogger(logger)}
		if cfg.Temperature != nil {
			opts = append(opts, openai.WithTemperature(*cfg.Temperature))
		}
		return openai.New(openai.Config{
			APIKey:     cfg.APIKey(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Name,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}, opts...), nil
	case "echo", "":
		return EchoModel{}, nil
	}
	return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
}

// EchoModel is an offline provider. It echoes the last human message, never
// requests tools, passes every guardrail criterion and routes a team to its
// first member once, then to FINISH.
type EchoModel struct{}

// Invoke implements ports.LanguageModel.
func (EchoModel) Invoke(_ context.Context, messages []domain.Message, _ []domain.ToolSpec) (domain.Message, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleHuman {
			return domain.AI("Hello World! You said: '" + messages[i].Content + "'"), nil
		}
	}
	return domain.AI("Hello World! How can I help you today?"), nil
}

// InvokeStructured implements ports.StructuredModel.
func (EchoModel) InvokeStructured(_ context.Context, messages []domain.Message, out schema.Schema) (map[string]any, error) {
	answer := make(map[string]any, len(out))
	for field, typ := range out {
		js := typ.JSONSchema()
		switch js["type"] {
		case "boolean":
			answer[field] = true
		case "string":
			if options, ok := js["enum"].([]string); ok {
				answer[field] = pick(messages, options)
			} else {
				answer[field] = "offline"
			}
		}
	}
	return answer, nil
}

// pick finishes once a member has spoken last.
func pick(messages []domain.Message, options []string) string {
	if len(options) == 0 {
		return domain.Finish
	}
	if n := len(messages); n > 0 && messages[n-1].Name != "" && slices.Contains(options, messages[n-1].Name) {
		if slices.Contains(options, domain.Finish) {
			return domain.Finish
		}
	}
	for _, o := range options {
		if o != domain.Finish {
			return o
		}
	}
	return domain.Finish
}
