package prebuilt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// routeField is the key deciders ask the model to fill.
const routeField = "next"

type route struct {
	Next string `mapstructure:"next"`
}

// StructuredDecider asks a structured model to pick one option from an enum.
type StructuredDecider struct {
	model ports.StructuredModel
}

// NewStructuredDecider creates a decider over model.
func NewStructuredDecider(model ports.StructuredModel) *StructuredDecider {
	return &StructuredDecider{model: model}
}

// Decide implements ports.Decider.
func (d *StructuredDecider) Decide(ctx context.Context, messages []domain.Message, options []string) (string, error) {
	out, err := d.model.InvokeStructured(ctx, messages, schema.Schema{
		routeField: schema.Describe(schema.Enum(options...),
			"Worker to route to next. If no workers needed, route to "+domain.Finish+"."),
	})
	if err != nil {
		return "", err
	}
	var r route
	if err := mapstructure.Decode(out, &r); err != nil {
		return "", fmt.Errorf("failed to decode routing decision: %w", err)
	}
	return strings.TrimSpace(r.Next), nil
}

// TextDecider asks a plain language model for a JSON routing object and repairs
// malformed replies. A reply that is not JSON is taken verbatim.
type TextDecider struct {
	model ports.LanguageModel
}

// NewTextDecider creates a decider over model.
func NewTextDecider(model ports.LanguageModel) *TextDecider {
	return &TextDecider{model: model}
}

// Decide implements ports.Decider.
func (d *TextDecider) Decide(ctx context.Context, messages []domain.Message, options []string) (string, error) {
	instruction := fmt.Sprintf(`Answer only with a JSON object {"%s": "<choice>"} where <choice> is one of: %s.`,
		routeField, strings.Join(options, ", "))
	prompt := append(append([]domain.Message{}, messages...), domain.System(instruction))

	reply, err := d.model.Invoke(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return ParseRoute(reply.Content), nil
}

// ParseRoute extracts the routing choice from model text.
func ParseRoute(content string) string {
	obj, err := DecodeObject(content)
	if err == nil {
		var r route
		if mapstructure.WeakDecode(obj, &r) == nil && r.Next != "" {
			return strings.TrimSpace(r.Next)
		}
	}
	return strings.Trim(strings.TrimSpace(content), `"'`+"`")
}

// DecodeObject parses a JSON object from model output, repairing it when needed.
func DecodeObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, nil
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("failed to repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal repaired JSON: %w", err)
	}
	return obj, nil
}
