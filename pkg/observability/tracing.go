package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
)

// TracerName identifies spans emitted by Tracing.
const TracerName = "github.com/aretw0/agentgraph"

// Tracing returns node middleware that wraps every execution in a span named
// "node <name>". A nil provider uses the global one.
func Tracing(tp trace.TracerProvider) graph.Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(TracerName)

	return func(name string, next graph.Node) graph.Node {
		return graph.Func(func(ctx context.Context, state domain.State) (graph.Result, error) {
			info := graph.RunInfoFrom(ctx)
			attrs := []attribute.KeyValue{
				attribute.String("agentgraph.thread_id", info.ThreadID),
				attribute.String("agentgraph.graph", info.Graph),
				attribute.String("agentgraph.node", name),
				attribute.Int("agentgraph.step", info.Step),
			}
			if len(info.Namespace) > 0 {
				attrs = append(attrs, attribute.String("agentgraph.namespace", strings.Join(info.Namespace, "/")))
			}
			if d, ok := next.(graph.Describer); ok {
				attrs = append(attrs, attribute.String("agentgraph.kind", string(d.Kind())))
			}

			ctx, span := tracer.Start(ctx, "node "+name, trace.WithAttributes(attrs...))
			defer span.End()

			res, err := next.Execute(ctx, state)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}
			if res.Next != "" {
				span.SetAttributes(attribute.String("agentgraph.next", res.Next))
			}
			return res, nil
		})
	}
}
