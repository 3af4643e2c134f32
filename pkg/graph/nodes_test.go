package graph

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/agentgraph/internal/testutils"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentNode_PromptAndReply(t *testing.T) {
	model := testutils.NewScriptedModel(domain.AI("", domain.ToolCall{Name: "search"}))
	specs := []domain.ToolSpec{{Name: "search"}}
	node := NewAgentNode(model,
		WithSystemPrompt("be brief"),
		WithTools(specs),
		WithAttribution("researcher"),
	)

	res, err := node.Execute(context.Background(), domain.State{
		domain.MessagesKey: []domain.Message{domain.Human("hi")},
	})
	require.NoError(t, err)

	prompt := model.Prompt(0)
	require.Len(t, prompt, 2)
	assert.Equal(t, domain.System("be brief"), prompt[0])
	assert.Equal(t, domain.Human("hi"), prompt[1])
	assert.Equal(t, specs, model.Tools(0))

	reply := res.Delta[domain.MessagesKey].([]domain.Message)[0]
	assert.Equal(t, "researcher", reply.Name)
	require.Len(t, reply.ToolCalls, 1)
	assert.NotEmpty(t, reply.ToolCalls[0].ID, "missing call ids are assigned")
	assert.Empty(t, res.Next)
}

func TestAgentNode_CapabilityError(t *testing.T) {
	model := testutils.NewScriptedModel()
	_, err := NewAgentNode(model).Execute(context.Background(), domain.State{})

	var capErr *domain.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, testutils.ErrScriptExhausted)
	assert.Equal(t, domain.KindCapability, domain.KindOf(err))
}

func toolState(calls ...domain.ToolCall) domain.State {
	return domain.State{domain.MessagesKey: []domain.Message{domain.Human("q"), domain.AI("", calls...)}}
}

func TestToolNode_ResultsInRequestOrder(t *testing.T) {
	tools := registry.NewRegistry()
	tools.Register("slow", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow done", nil
	})
	tools.Register("fast", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	})

	res, err := NewToolNode(tools).Execute(context.Background(), toolState(
		domain.ToolCall{ID: "1", Name: "slow"},
		domain.ToolCall{ID: "2", Name: "fast"},
	))
	require.NoError(t, err)

	msgs := res.Delta[domain.MessagesKey].([]domain.Message)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ToolCallID)
	assert.Equal(t, "slow done", msgs[0].Content)
	assert.Equal(t, "2", msgs[1].ToolCallID)
	assert.JSONEq(t, `{"ok":true}`, msgs[1].Content)
	assert.Equal(t, domain.RoleTool, msgs[1].Role)
}

func TestToolNode_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	tools := registry.NewRegistry()
	tools.Register("wait", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})

	_, err := NewToolNode(tools).Execute(context.Background(), toolState(
		domain.ToolCall{ID: "a", Name: "wait"},
		domain.ToolCall{ID: "b", Name: "wait"},
		domain.ToolCall{ID: "c", Name: "wait"},
	))
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1))

	peak.Store(0)
	_, err = NewToolNode(tools, WithConcurrency(1)).Execute(context.Background(), toolState(
		domain.ToolCall{ID: "a", Name: "wait"},
		domain.ToolCall{ID: "b", Name: "wait"},
	))
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestToolNode_FailuresAreData(t *testing.T) {
	tools := registry.NewRegistry()
	tools.Register("ok", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return "fine", nil
	})
	tools.Register("broken", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})
	tools.Register("panics", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		panic("oops")
	})
	tools.Register("typed", "", schema.Schema{"n": schema.Int()}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["n"], nil
	})

	res, err := NewToolNode(tools).Execute(context.Background(), toolState(
		domain.ToolCall{ID: "1", Name: "broken"},
		domain.ToolCall{ID: "2", Name: "missing"},
		domain.ToolCall{ID: "3", Name: "ok"},
		domain.ToolCall{ID: "4", Name: "panics"},
		domain.ToolCall{ID: "5", Name: "typed", Args: map[string]any{"n": "x"}},
	))
	require.NoError(t, err, "tool failures never abort the step")

	msgs := res.Delta[domain.MessagesKey].([]domain.Message)
	require.Len(t, msgs, 5)
	assert.True(t, msgs[0].IsError)
	assert.Contains(t, msgs[0].Content, "disk full")
	assert.True(t, msgs[1].IsError)
	assert.Contains(t, msgs[1].Content, `unknown tool "missing"`)
	assert.False(t, msgs[2].IsError)
	assert.Equal(t, "fine", msgs[2].Content)
	assert.True(t, msgs[3].IsError)
	assert.Contains(t, msgs[3].Content, "panicked")
	assert.True(t, msgs[4].IsError)
	assert.Contains(t, msgs[4].Content, "invalid arguments")
	for i, m := range msgs {
		assert.Equal(t, strconv.Itoa(i+1), m.ToolCallID, "result %d correlates to its call", i)
	}
}

func TestToolNode_RepeatedCallIDsKeepEveryResult(t *testing.T) {
	tools := registry.NewRegistry()
	tools.Register("echo", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return args["v"], nil
	})

	state := toolState(
		domain.ToolCall{ID: "call_1", Name: "echo", Args: map[string]any{"v": "a"}},
		domain.ToolCall{ID: "call_1", Name: "echo", Args: map[string]any{"v": "b"}},
	)
	res, err := NewToolNode(tools).Execute(context.Background(), state)
	require.NoError(t, err)

	merged, err := domain.Merge(domain.MessagesSchema(), state, res.Delta)
	require.NoError(t, err)
	msgs := merged.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[1].Content)
	assert.Equal(t, "b", msgs[2].Content)
	assert.NotEmpty(t, msgs[1].ID)
	assert.NotEqual(t, msgs[1].ID, msgs[2].ID)
}

func TestToolNode_Timeout(t *testing.T) {
	tools := registry.NewRegistry()
	tools.Register("hang", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	res, err := NewToolNode(tools, WithToolTimeout(10*time.Millisecond)).
		Execute(context.Background(), toolState(domain.ToolCall{ID: "1", Name: "hang"}))
	require.NoError(t, err)
	msg := res.Delta[domain.MessagesKey].([]domain.Message)[0]
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, "deadline exceeded")
}

func TestToolNode_HooksAndNoCalls(t *testing.T) {
	tools := registry.NewRegistry()
	tools.Register("ok", "", nil, func(ctx context.Context, args map[string]any) (any, error) { return "x", nil })

	var calls, returns atomic.Int32
	ctx := WithRunInfo(context.Background(), RunInfo{
		ThreadID: "t1",
		Node:     "tools",
		Hooks: domain.LifecycleHooks{
			OnToolCall:   func(ctx context.Context, e *domain.ToolEvent) { calls.Add(1) },
			OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) { returns.Add(1) },
		},
	})
	_, err := NewToolNode(tools).Execute(ctx, toolState(domain.ToolCall{ID: "1", Name: "ok"}, domain.ToolCall{ID: "2", Name: "ok"}))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), returns.Load())

	res, err := NewToolNode(tools).Execute(context.Background(), domain.State{
		domain.MessagesKey: []domain.Message{domain.AI("done")},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Delta)
}

func TestRouterNode(t *testing.T) {
	members := []string{"researcher", "writer"}
	conversation := domain.State{domain.MessagesKey: []domain.Message{domain.Human("write a poem")}}

	t.Run("routes to member", func(t *testing.T) {
		decider := testutils.NewScriptedDecider("writer")
		res, err := NewRouterNode(decider, members).Execute(context.Background(), conversation)
		require.NoError(t, err)
		assert.Equal(t, "writer", res.Next)
		assert.Equal(t, "writer", res.Delta[DefaultRouteField])
		assert.Equal(t, []string{"researcher", "writer", domain.Finish}, decider.Options(0))
	})

	t.Run("finish", func(t *testing.T) {
		res, err := NewRouterNode(testutils.NewScriptedDecider(domain.Finish), members).Execute(context.Background(), conversation)
		require.NoError(t, err)
		assert.Equal(t, domain.End, res.Next)
	})

	t.Run("fails closed on unknown decision", func(t *testing.T) {
		res, err := NewRouterNode(testutils.NewScriptedDecider("hacker"), members, WithRouteField("route")).
			Execute(context.Background(), conversation)
		require.NoError(t, err)
		assert.Equal(t, domain.End, res.Next)
		assert.Equal(t, domain.Finish, res.Delta["route"])
	})

	t.Run("empty conversation finishes without asking", func(t *testing.T) {
		decider := testutils.NewScriptedDecider("writer")
		res, err := NewRouterNode(decider, members).Execute(context.Background(), domain.State{})
		require.NoError(t, err)
		assert.Equal(t, domain.End, res.Next)
		assert.Zero(t, decider.Calls())
	})

	t.Run("decider error is a capability error", func(t *testing.T) {
		decider := testutils.NewScriptedDecider()
		decider.Err = errors.New("rate limited")
		_, err := NewRouterNode(decider, members).Execute(context.Background(), conversation)
		var capErr *domain.CapabilityError
		assert.ErrorAs(t, err, &capErr)
	})
}

func TestConditions(t *testing.T) {
	pending := domain.State{domain.MessagesKey: []domain.Message{domain.AI("", domain.ToolCall{ID: "1", Name: "x"})}}
	done := domain.State{domain.MessagesKey: []domain.Message{domain.AI("bye")}}

	assert.True(t, HasPendingToolCalls(pending))
	assert.False(t, HasPendingToolCalls(done))
	assert.False(t, HasPendingToolCalls(domain.State{}))

	cond := ToolsCondition("tools")
	assert.Equal(t, "tools", cond(pending))
	assert.Equal(t, domain.End, cond(done))

	route := RouteOn("next")
	assert.Equal(t, "writer", route(domain.State{"next": "writer"}))
	assert.Equal(t, domain.End, route(domain.State{"next": domain.Finish}))
	assert.Equal(t, domain.End, route(domain.State{}))
}
