package domain

import "github.com/aretw0/agentgraph/pkg/schema"

// Role identifies who authored a message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Identified is implemented by sequence elements that carry a stable identity.
// The append reducer replaces an existing element in place when identities match.
type Identified interface {
	Identity() string
}

// Message is one element of the conversation sequence.
type Message struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Role       Role       `json:"role" yaml:"role" mapstructure:"role"`
	Content    string     `json:"content" yaml:"content" mapstructure:"content"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"` // Originating node, for multi-agent transcripts
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty" mapstructure:"tool_calls"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty" mapstructure:"tool_call_id"`
	IsError    bool       `json:"is_error,omitempty" yaml:"is_error,omitempty" mapstructure:"is_error"`
}

// Identity implements Identified.
func (m Message) Identity() string { return m.ID }

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Human builds a human message.
func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AI builds an assistant message, optionally requesting tool calls.
func AI(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// System builds a system instruction message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ToolMessage builds the result message correlated to a tool call by ToolCallID.
// It carries no identity; providers may reuse call ids across rounds.
func ToolMessage(callID, toolName, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       toolName,
		ToolCallID: callID,
		IsError:    isError,
	}
}

// ToolCall is a tool invocation requested by an assistant message.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ToolSpec describes a callable tool advertised to a language model.
type ToolSpec struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Parameters  schema.Schema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}
