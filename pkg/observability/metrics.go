package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Metrics records node visits, node latency, tool latency and checkpoint writes.
type Metrics struct {
	nodeVisits   *prometheus.CounterVec
	nodeErrors   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	checkpoints  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgraph_node_visits_total",
			Help: "Total number of node executions.",
		}, []string{"graph", "node", "kind"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgraph_node_errors_total",
			Help: "Total number of failed node executions.",
		}, []string{"graph", "node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentgraph_node_duration_seconds",
			Help:    "Duration of node executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph", "node"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgraph_tool_calls_total",
			Help: "Total number of tool invocations.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentgraph_tool_duration_seconds",
			Help:    "Duration of tool executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgraph_checkpoints_total",
			Help: "Total number of checkpoints written.",
		}, []string{"graph", "source"}),
	}

	for _, c := range []prometheus.Collector{
		m.nodeVisits, m.nodeErrors, m.nodeDuration, m.toolCalls, m.toolDuration, m.checkpoints,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Graph, e.Node, string(e.Kind)).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Graph, e.Node).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeErrors.WithLabelValues(e.Graph, e.Node).Inc()
			}
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			m.toolCalls.WithLabelValues(e.ToolName, status).Inc()
			m.toolDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
		},
		OnCheckpoint: func(_ context.Context, cp *domain.Checkpoint) {
			m.checkpoints.WithLabelValues(cp.Graph, cp.Source).Inc()
		},
	}
}
