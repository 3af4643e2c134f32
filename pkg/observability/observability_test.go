package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Graph: "g", Node: "agent", Kind: domain.KindAgent})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Graph: "g", Node: "agent", Kind: domain.KindAgent})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{Graph: "g", Node: "agent", Err: errors.New("boom")})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "search", IsError: true})
	hooks.OnCheckpoint(ctx, &domain.Checkpoint{Graph: "g", Source: domain.SourceLoop})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodeVisits.WithLabelValues("g", "agent", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeErrors.WithLabelValues("g", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpoints.WithLabelValues("g", "loop")))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestTracing_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mw := Tracing(tp)

	ok := mw("router", graph.Func(func(ctx context.Context, s domain.State) (graph.Result, error) {
		return graph.Result{Next: "worker"}, nil
	}))
	failing := mw("worker", graph.Func(func(ctx context.Context, s domain.State) (graph.Result, error) {
		return graph.Result{}, errors.New("model down")
	}))

	ctx := graph.WithRunInfo(context.Background(), graph.RunInfo{ThreadID: "t1", Graph: "g", Step: 3})
	_, err := ok.Execute(ctx, domain.State{})
	require.NoError(t, err)
	_, err = failing.Execute(ctx, domain.State{})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "node router", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "t1", attrs["agentgraph.thread_id"])
	assert.Equal(t, "3", attrs["agentgraph.step"])
	assert.Equal(t, "worker", attrs["agentgraph.next"])

	assert.Equal(t, "node worker", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
