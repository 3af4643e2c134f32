// Package openai implements the language-model capabilities over the OpenAI chat
// completions API (or any compatible endpoint).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config selects the endpoint and model.
type Config struct {
	APIKey     string
	BaseURL    string // Empty for api.openai.com
	Model      string
	HTTPClient *http.Client
}

// Model implements ports.LanguageModel and ports.StructuredModel.
type Model struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(m *Model) { m.temperature = t }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// New creates a model client.
func New(cfg Config, opts ...Option) *Model {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	m := &Model{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logging.NewNop(),
	}
	if m.model == "" {
		m.model = DefaultModel
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the model identifier sent with each request.
func (m *Model) Name() string { return m.model }

// Invoke implements ports.LanguageModel.
func (m *Model) Invoke(ctx context.Context, messages []domain.Message, tools []domain.ToolSpec) (domain.Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toChatMessages(messages),
		Temperature: m.temperature,
	}
	for _, spec := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema.JSONSchema(spec.Parameters),
			},
		})
	}

	choice, id, err := m.complete(ctx, req)
	if err != nil {
		return domain.Message{}, err
	}

	reply := domain.Message{
		ID:      id,
		Role:    domain.RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		args, err := DecodeArguments(tc.Function.Arguments)
		if err != nil {
			return domain.Message{}, fmt.Errorf("tool call %s: %w", tc.Function.Name, err)
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return reply, nil
}

type jsonSchema map[string]any

func (s jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// InvokeStructured implements ports.StructuredModel using a JSON-schema response format.
func (m *Model) InvokeStructured(ctx context.Context, messages []domain.Message, out schema.Schema) (map[string]any, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toChatMessages(messages),
		Temperature: m.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "output",
				Schema: jsonSchema(schema.JSONSchema(out)),
			},
		},
	}

	choice, _, err := m.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := DecodeArguments(choice.Content)
	if err != nil {
		return nil, fmt.Errorf("structured output: %w", err)
	}
	if err := schema.Validate(out, data); err != nil {
		return nil, fmt.Errorf("structured output: %w", err)
	}
	return data, nil
}

func (m *Model) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, string, error) {
	m.logger.Debug("chat completion", "model", m.model, "messages", len(req.Messages), "tools", len(req.Tools))
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, "", errors.New("OpenAI returned no choices")
	}
	m.logger.Debug("chat completion received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message, resp.ID, nil
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		cm := openai.ChatCompletionMessage{Content: msg.Content}
		switch msg.Role {
		case domain.RoleSystem:
			cm.Role = openai.ChatMessageRoleSystem
		case domain.RoleTool:
			cm.Role = openai.ChatMessageRoleTool
			cm.ToolCallID = msg.ToolCallID
		case domain.RoleAssistant:
			cm.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
		default:
			cm.Role = openai.ChatMessageRoleUser
		}
		if msg.Role != domain.RoleTool && validName.MatchString(msg.Name) {
			cm.Name = msg.Name
		}
		out = append(out, cm)
	}
	return out
}

// DecodeArguments parses a JSON object produced by a model, repairing it when it
// is malformed. Empty input yields an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to repair arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal repaired arguments: %w", err)
	}
	return args, nil
}
