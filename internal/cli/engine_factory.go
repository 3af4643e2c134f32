package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/aretw0/agentgraph"
	"github.com/aretw0/agentgraph/internal/config"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/observability"
)

// App is a fully wired engine with the demo graphs registered.
type App struct {
	Engine  *agentgraph.Engine
	Config  config.Config
	Logger  *slog.Logger
	Metrics *prometheus.Registry
	Tools   *Toolbox

	persistence *Persistence
}

// Close releases the checkpointer.
func (a *App) Close() error {
	return a.persistence.Close()
}

// NewApp builds the engine from cfg.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	persistence, err := NewPersistence(ctx, cfg.Checkpointer, logger)
	if err != nil {
		return nil, err
	}

	app, err := newApp(cfg, logger, persistence)
	if err != nil {
		return nil, errors.Join(err, persistence.Close())
	}
	return app, nil
}

func newApp(cfg config.Config, logger *slog.Logger, persistence *Persistence) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := []agentgraph.Option{
		agentgraph.WithLogger(logger),
		agentgraph.WithCheckpointer(persistence.Checkpointer),
		agentgraph.WithMaxSteps(cfg.Engine.MaxSteps),
		agentgraph.WithLifecycleHooks(domain.ChainHooks(metrics.Hooks(), createDebugHooks(logger))),
	}
	if persistence.Locker != nil {
		opts = append(opts,
			agentgraph.WithLocker(persistence.Locker),
			agentgraph.WithLockTTL(cfg.Checkpointer.Redis.LockTTL),
		)
	}
	if cfg.Engine.Tracing {
		opts = append(opts, agentgraph.WithMiddleware(observability.Tracing(otel.GetTracerProvider())))
	}
	eng := agentgraph.New(opts...)

	model, err := NewModel(cfg.Model, logger)
	if err != nil {
		return nil, err
	}
	tools, err := NewToolbox(cfg.Tools, logger)
	if err != nil {
		return nil, err
	}
	if err := RegisterGraphs(eng, model, tools, GraphOptions{
		ToolTimeout:     cfg.Engine.ToolTimeout,
		ToolConcurrency: cfg.Engine.ToolConcurrency,
	}); err != nil {
		return nil, fmt.Errorf("failed to register graphs: %w", err)
	}

	logger.Debug("engine ready",
		"checkpointer", cfg.Checkpointer.Driver,
		"model", cfg.Model.Provider,
		"graphs", len(eng.Graphs()),
	)
	return &App{
		Engine:      eng,
		Config:      cfg,
		Logger:      logger,
		Metrics:     reg,
		Tools:       tools,
		persistence: persistence,
	}, nil
}
