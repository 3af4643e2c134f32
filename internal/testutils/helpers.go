// Package testutils provides scripted capability stubs for tests.
package testutils

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// ErrScriptExhausted is returned when a scripted stub has no responses left.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptedModel replies with a fixed sequence of messages and records every prompt.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []domain.Message
	calls   [][]domain.Message
	tools   [][]domain.ToolSpec
	// Reply, when set, computes the reply instead of the script.
	Reply func(messages []domain.Message) (domain.Message, error)
}

// NewScriptedModel returns a model that answers with replies in order.
func NewScriptedModel(replies ...domain.Message) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// Invoke implements ports.LanguageModel.
func (m *ScriptedModel) Invoke(ctx context.Context, messages []domain.Message, tools []domain.ToolSpec) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slices.Clone(messages))
	m.tools = append(m.tools, tools)
	if m.Reply != nil {
		return m.Reply(messages)
	}
	idx := len(m.calls) - 1
	if idx >= len(m.replies) {
		return domain.Message{}, ErrScriptExhausted
	}
	return m.replies[idx], nil
}

// Calls returns the number of invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Prompt returns the messages passed to invocation i.
func (m *ScriptedModel) Prompt(i int) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// Tools returns the tool specs passed to invocation i.
func (m *ScriptedModel) Tools(i int) []domain.ToolSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools[i]
}

// EchoModel answers the way the hello-world agent does.
func EchoModel() *ScriptedModel {
	return &ScriptedModel{Reply: func(messages []domain.Message) (domain.Message, error) {
		if n := len(messages); n > 0 && messages[n-1].Role == domain.RoleHuman {
			return domain.AI("Hello World! You said: '" + messages[n-1].Content + "'"), nil
		}
		return domain.AI("Hello World! How can I help you today?"), nil
	}}
}

// ScriptedDecider returns a fixed sequence of decisions and records the options offered.
type ScriptedDecider struct {
	mu        sync.Mutex
	decisions []string
	options   [][]string
	Err       error
}

// NewScriptedDecider returns a decider answering with decisions in order and then Finish.
func NewScriptedDecider(decisions ...string) *ScriptedDecider {
	return &ScriptedDecider{decisions: decisions}
}

// Decide implements ports.Decider.
func (d *ScriptedDecider) Decide(ctx context.Context, messages []domain.Message, options []string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	d.options = append(d.options, slices.Clone(options))
	idx := len(d.options) - 1
	if idx >= len(d.decisions) {
		return domain.Finish, nil
	}
	return d.decisions[idx], nil
}

// Calls returns the number of decisions made.
func (d *ScriptedDecider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.options)
}

// Options returns the option set offered on call i.
func (d *ScriptedDecider) Options(i int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options[i]
}

// StructuredStub answers InvokeStructured with fixed values.
type StructuredStub struct {
	Values map[string]any
	Err    error
	Seen   []schema.Schema
}

// InvokeStructured implements ports.StructuredModel.
func (s *StructuredStub) InvokeStructured(ctx context.Context, messages []domain.Message, out schema.Schema) (map[string]any, error) {
	s.Seen = append(s.Seen, out)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Values, nil
}
