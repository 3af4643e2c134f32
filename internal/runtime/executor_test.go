package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aretw0/agentgraph/internal/runtime"
	"github.com/aretw0/agentgraph/internal/testutils"
	"github.com/aretw0/agentgraph/pkg/adapters/file"
	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/schema"
)

func input(msgs ...domain.Message) domain.State {
	return domain.State{domain.MessagesKey: msgs}
}

func echoTools() *registry.Registry {
	r := registry.NewRegistry()
	r.Register("echo", "echoes text", schema.Schema{"text": schema.String()},
		func(ctx context.Context, args map[string]any) (any, error) {
			return "echo: " + args["text"].(string), nil
		})
	return r
}

type helperT interface {
	require.TestingT
	Helper()
}

// reactGraph is the agent/tool loop.
func reactGraph(t helperT, model *testutils.ScriptedModel) *graph.Graph {
	t.Helper()
	tools := echoTools()
	g, err := graph.NewBuilder("react").
		AddNode("agent", graph.NewAgentNode(model, graph.WithTools(tools.Specs()))).
		AddNode("tools", graph.NewToolNode(tools)).
		SetEntry("agent").
		AddConditionalEdges("agent", graph.ToolsCondition("tools"), "tools", domain.End).
		AddEdge("tools", "agent").
		Compile()
	require.NoError(t, err)
	return g
}

func TestExecutor_HelloWorld(t *testing.T) {
	g, err := graph.NewBuilder("hello").
		AddNode("echo", graph.NewAgentNode(testutils.EchoModel())).
		SetEntry("echo").
		AddEdge("echo", domain.End).
		Compile()
	require.NoError(t, err)

	cp := memory.New()
	out, err := runtime.NewExecutor().Run(context.Background(), runtime.Request{
		Graph:        g,
		ThreadID:     "t1",
		Input:        input(domain.Human("hi")),
		Checkpointer: cp,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, []domain.Message{
		domain.Human("hi"),
		domain.AI("Hello World! You said: 'hi'"),
	}, out.State.Messages())

	history, err := cp.History(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Step)
	assert.Equal(t, "echo", history[0].Node)
	assert.Equal(t, domain.End, history[0].Next)
	assert.Equal(t, out.State.Messages(), history[0].State.Messages())
}

func TestExecutor_AgentToolLoopTerminates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(0, 6).Draw(rt, "rounds")
		// Providers may reuse call ids across rounds and within one reply.
		callID := rapid.SampledFrom([]string{"call_1", "call_2", ""})

		replies := make([]domain.Message, 0, k+1)
		totalCalls := 0
		for i := 0; i < k; i++ {
			n := rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("calls-%d", i))
			calls := make([]domain.ToolCall, n)
			for j := range calls {
				calls[j] = domain.ToolCall{
					ID:   callID.Draw(rt, fmt.Sprintf("id-%d-%d", i, j)),
					Name: "echo",
					Args: map[string]any{"text": fmt.Sprintf("%d.%d", i, j)},
				}
			}
			totalCalls += n
			replies = append(replies, domain.AI("", calls...))
		}
		replies = append(replies, domain.AI("done"))
		model := testutils.NewScriptedModel(replies...)

		var toolSteps int
		exec := runtime.NewExecutor(runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
				if e.Node == "tools" {
					toolSteps++
				}
			},
		}))

		initial := []domain.Message{domain.Human("start")}
		out, err := exec.Run(context.Background(), runtime.Request{
			Graph:        reactGraph(rt, model),
			ThreadID:     "loop",
			Input:        input(initial...),
			Checkpointer: memory.New(),
		})
		require.NoError(rt, err)

		assert.Equal(rt, domain.StatusCompleted, out.Status)
		assert.Equal(rt, k, toolSteps)
		assert.Equal(rt, 2*k+1, out.Steps)
		assert.Len(rt, out.State.Messages(), len(initial)+k+totalCalls+1)

		var results []string
		for _, m := range out.State.Messages() {
			if m.Role == domain.RoleTool {
				results = append(results, m.Content)
			}
		}
		assert.Len(rt, results, totalCalls, "no tool result is overwritten")

		last, _ := out.State.LastMessage()
		assert.Equal(rt, "done", last.Content)
	})
}

func TestExecutor_RepeatedCallIDAcrossRounds(t *testing.T) {
	const k = 3
	replies := make([]domain.Message, 0, k+1)
	for i := 0; i < k; i++ {
		replies = append(replies, domain.AI("", domain.ToolCall{
			ID: "call_1", Name: "echo", Args: map[string]any{"text": fmt.Sprint(i)},
		}))
	}
	replies = append(replies, domain.AI("done"))

	out, err := runtime.NewExecutor().Run(context.Background(), runtime.Request{
		Graph:        reactGraph(t, testutils.NewScriptedModel(replies...)),
		ThreadID:     "t",
		Input:        input(domain.Human("go")),
		Checkpointer: memory.New(),
	})
	require.NoError(t, err)

	msgs := out.State.Messages()
	require.Len(t, msgs, 1+2*k+1)
	for i := 0; i < k; i++ {
		assert.Equal(t, "echo: "+fmt.Sprint(i), msgs[2+2*i].Content)
		assert.Equal(t, "call_1", msgs[2+2*i].ToolCallID)
	}
}

func TestExecutor_ToolResultsCorrelate(t *testing.T) {
	model := testutils.NewScriptedModel(
		domain.AI("", domain.ToolCall{ID: "a", Name: "echo", Args: map[string]any{"text": "x"}},
			domain.ToolCall{ID: "b", Name: "missing"}),
		domain.AI("ok"),
	)
	out, err := runtime.NewExecutor().Run(context.Background(), runtime.Request{
		Graph: reactGraph(t, model), ThreadID: "t", Input: input(domain.Human("go")),
	})
	require.NoError(t, err)

	msgs := out.State.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "a", msgs[2].ToolCallID)
	assert.Equal(t, "echo: x", msgs[2].Content)
	assert.Equal(t, "b", msgs[3].ToolCallID)
	assert.True(t, msgs[3].IsError, "unknown tools surface as error results")
	assert.Contains(t, msgs[3].Content, "missing")
}

func supervisorGraph(t *testing.T, decider *testutils.ScriptedDecider, workerCalls *atomic.Int32) *graph.Graph {
	t.Helper()
	worker := graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
		workerCalls.Add(1)
		return graph.Update(domain.AI("worked")), nil
	})
	g, err := graph.NewBuilder("team").
		AddNode("supervisor", graph.NewRouterNode(decider, []string{"worker"})).
		AddNode("worker", worker).
		SetEntry("supervisor").
		AddEdge("worker", "supervisor").
		Compile()
	require.NoError(t, err)
	return g
}

func TestExecutor_RouterFailsClosed(t *testing.T) {
	var calls atomic.Int32
	decider := testutils.NewScriptedDecider("nonsense")

	out, err := runtime.NewExecutor().Run(context.Background(), runtime.Request{
		Graph:    supervisorGraph(t, decider, &calls),
		ThreadID: "t",
		Input:    input(domain.Human("hi")),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, domain.Finish, out.State[graph.DefaultRouteField])
}

func TestExecutor_SupervisorRoutesWorkers(t *testing.T) {
	var calls atomic.Int32
	decider := testutils.NewScriptedDecider("worker", "worker")

	out, err := runtime.NewExecutor().Run(context.Background(), runtime.Request{
		Graph:    supervisorGraph(t, decider, &calls),
		ThreadID: "t",
		Input:    input(domain.Human("hi")),
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, decider.Calls())
	assert.Equal(t, []string{"worker", domain.Finish}, decider.Options(0))
	assert.Len(t, out.State.Messages(), 3)
}

func deterministicModel() *testutils.ScriptedModel {
	return &testutils.ScriptedModel{Reply: func(msgs []domain.Message) (domain.Message, error) {
		results := 0
		for _, m := range msgs {
			if m.Role == domain.RoleTool {
				results++
			}
		}
		if results < 3 {
			return domain.AI(fmt.Sprintf("round %d", results), domain.ToolCall{
				ID:   fmt.Sprintf("call-%d", results),
				Name: "echo",
				Args: map[string]any{"text": fmt.Sprint(results)},
			}), nil
		}
		return domain.AI("finished"), nil
	}}
}

func withoutIDs(msgs []domain.Message) []domain.Message {
	out := slices.Clone(msgs)
	for i := range out {
		out[i].ID = ""
	}
	return out
}

func TestExecutor_ResumeMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	straight, err := runtime.NewExecutor().Run(ctx, runtime.Request{
		Graph:        reactGraph(t, deterministicModel()),
		ThreadID:     "straight",
		Input:        input(domain.Human("go")),
		Checkpointer: file.New(dir),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, straight.Status)

	const n = 3
	seen := 0
	first, err := runtime.NewExecutor().Stream(ctx, runtime.Request{
		Graph:        reactGraph(t, deterministicModel()),
		ThreadID:     "resumed",
		Input:        input(domain.Human("go")),
		Checkpointer: file.New(dir),
	}, func(domain.StepEvent) bool {
		seen++
		return seen < n
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, first.Status)
	assert.Equal(t, n, first.Step)

	// A new executor and checkpointer stand in for a restarted process.
	var steps []int
	second, err := runtime.NewExecutor().Stream(ctx, runtime.Request{
		Graph:        reactGraph(t, deterministicModel()),
		ThreadID:     "resumed",
		Checkpointer: file.New(dir),
	}, func(ev domain.StepEvent) bool {
		steps = append(steps, ev.Step)
		return true
	})
	require.NoError(t, err)

	require.NotEmpty(t, steps)
	assert.Equal(t, n+1, steps[0])
	assert.Equal(t, domain.StatusCompleted, second.Status)
	// Tool results get fresh ids on every run; everything else must match.
	assert.Equal(t, withoutIDs(straight.State.Messages()), withoutIDs(second.State.Messages()))
	assert.Equal(t, len(straight.State), len(second.State))
	assert.Equal(t, straight.Step, second.Step)
}

func TestExecutor_StepBudget(t *testing.T) {
	ping := graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
		return graph.Result{}, nil
	})
	g, err := graph.NewBuilder("cycle").
		AddNode("a", ping).
		AddNode("b", ping).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "a").
		Compile()
	require.NoError(t, err)

	cp := memory.New()
	out, err := runtime.NewExecutor(runtime.WithMaxSteps(5)).Run(context.Background(), runtime.Request{
		Graph: g, ThreadID: "t", Checkpointer: cp,
	})

	var budget *domain.StepBudgetExceededError
	require.ErrorAs(t, err, &budget)
	assert.Equal(t, 5, budget.Limit)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, domain.KindStepBudgetExceeded, runErr.Kind)
	assert.Equal(t, 6, runErr.Step)
	assert.Equal(t, "b", runErr.Node)
	assert.Equal(t, domain.StatusFailed, out.Status)

	latest, err := cp.LoadLatest(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Step)
	assert.True(t, latest.Pending(), "thread stays resumable")
}

func TestExecutor_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var second atomic.Bool
	g, err := graph.NewBuilder("cancel").
		AddNode("first", graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			cancel()
			return graph.Update(domain.AI("one")), nil
		})).
		AddNode("second", graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			second.Store(true)
			return graph.Result{}, nil
		})).
		SetEntry("first").
		AddEdge("first", "second").
		AddEdge("second", domain.End).
		Compile()
	require.NoError(t, err)

	cp := memory.New()
	_, err = runtime.NewExecutor().Run(ctx, runtime.Request{Graph: g, ThreadID: "t", Checkpointer: cp})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.KindCancelled, domain.KindOf(err))
	assert.False(t, second.Load())

	latest, err := cp.LoadLatest(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Step)
	assert.Equal(t, "second", latest.Next)
}

func TestExecutor_CapabilityErrorKeepsInput(t *testing.T) {
	ctx := context.Background()
	broken := &testutils.ScriptedModel{Reply: func([]domain.Message) (domain.Message, error) {
		return domain.Message{}, errors.New("provider down")
	}}
	build := func(model *testutils.ScriptedModel) *graph.Graph {
		g, err := graph.NewBuilder("assistant").
			AddNode("agent", graph.NewAgentNode(model)).
			SetEntry("agent").
			AddEdge("agent", domain.End).
			Compile()
		require.NoError(t, err)
		return g
	}

	cp := memory.New()
	_, err := runtime.NewExecutor().Run(ctx, runtime.Request{
		Graph: build(broken), ThreadID: "t", Input: input(domain.Human("hi")), Checkpointer: cp,
	})

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, domain.KindCapability, runErr.Kind)
	assert.Equal(t, "agent", runErr.Node)
	assert.Equal(t, 1, runErr.Step)
	assert.Equal(t, "t", runErr.ThreadID)

	latest, err := cp.LoadLatest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceInput, latest.Source)
	assert.Equal(t, []domain.Message{domain.Human("hi")}, latest.State.Messages())

	out, err := runtime.NewExecutor().Run(ctx, runtime.Request{
		Graph: build(testutils.EchoModel()), ThreadID: "t", Checkpointer: cp,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Step)
	assert.Len(t, out.State.Messages(), 2)
}

func TestExecutor_SchemaError(t *testing.T) {
	g, err := graph.NewBuilder("bad").
		AddNode("bad", graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			return graph.Result{Delta: domain.State{domain.MessagesKey: "not a list"}}, nil
		})).
		SetEntry("bad").
		AddEdge("bad", domain.End).
		Compile()
	require.NoError(t, err)

	_, err = runtime.NewExecutor().Run(context.Background(), runtime.Request{Graph: g, ThreadID: "t"})
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, domain.MessagesKey, schemaErr.Field)
	assert.Equal(t, domain.KindSchema, domain.KindOf(err))
}

func TestExecutor_UndeclaredDirectiveIsIntegrityError(t *testing.T) {
	g, err := graph.NewBuilder("rogue").
		AddNode("rogue", graph.Directed(graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			return graph.Result{Next: "elsewhere"}, nil
		}))).
		SetEntry("rogue").
		Compile()
	require.NoError(t, err)

	_, err = runtime.NewExecutor().Run(context.Background(), runtime.Request{Graph: g, ThreadID: "t"})
	assert.Equal(t, domain.KindGraphIntegrity, domain.KindOf(err))
}

func TestExecutor_CompletedThreadWithoutInputIsNoop(t *testing.T) {
	ctx := context.Background()
	model := testutils.EchoModel()
	g, err := graph.NewBuilder("hello").
		AddNode("echo", graph.NewAgentNode(model)).
		SetEntry("echo").
		AddEdge("echo", domain.End).
		Compile()
	require.NoError(t, err)

	cp := memory.New()
	exec := runtime.NewExecutor()
	_, err = exec.Run(ctx, runtime.Request{Graph: g, ThreadID: "t", Input: input(domain.Human("hi")), Checkpointer: cp})
	require.NoError(t, err)

	out, err := exec.Run(ctx, runtime.Request{Graph: g, ThreadID: "t", Checkpointer: cp})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, 0, out.Steps)
	assert.Equal(t, 1, model.Calls())

	out, err = exec.Run(ctx, runtime.Request{Graph: g, ThreadID: "t", Input: input(domain.Human("again")), Checkpointer: cp})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Step)
	assert.Len(t, out.State.Messages(), 4)
}

func TestExecutor_HooksAndMiddleware(t *testing.T) {
	var order []string
	var checkpoints []int
	trace := func(name string, next graph.Node) graph.Node {
		return graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			order = append(order, "mw:"+name)
			return next.Execute(ctx, state)
		})
	}
	exec := runtime.NewExecutor(
		runtime.WithMiddleware(trace),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
				order = append(order, "enter:"+e.Node+":"+string(e.Kind))
			},
			OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
				order = append(order, "leave:"+e.Node)
			},
			OnCheckpoint: func(ctx context.Context, cp *domain.Checkpoint) {
				checkpoints = append(checkpoints, cp.Step)
			},
		}),
	)
	model := testutils.NewScriptedModel(
		domain.AI("", domain.ToolCall{ID: "1", Name: "echo", Args: map[string]any{"text": "x"}}),
		domain.AI("done"),
	)

	_, err := exec.Run(context.Background(), runtime.Request{
		Graph: reactGraph(t, model), ThreadID: "t", Input: input(domain.Human("go")), Checkpointer: memory.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"enter:agent:agent", "mw:agent", "leave:agent",
		"enter:tools:tool", "mw:tools", "leave:tools",
		"enter:agent:agent", "mw:agent", "leave:agent",
	}, order)
	assert.Equal(t, []int{1, 2, 3}, checkpoints)
}
