package agentgraph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/internal/runtime"
	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/ports"
	"github.com/aretw0/agentgraph/pkg/thread"
)

// Outcome is the result of a run.
type Outcome = runtime.Outcome

// SubgraphOption configures a subgraph node.
type SubgraphOption = runtime.SubgraphOption

// PreserveAttribution keeps the names inner nodes gave their messages.
var PreserveAttribution = runtime.PreserveAttribution

// DefaultMaxSteps is the per-run step budget used when none is configured.
const DefaultMaxSteps = runtime.DefaultMaxSteps

// Engine is the high-level entry point: a registry of named graphs sharing one
// executor and one checkpointer.
type Engine struct {
	mu     sync.RWMutex
	graphs map[string]*graph.Graph
	order  []string

	exec         *runtime.Executor
	threads      *thread.Manager
	checkpointer ports.Checkpointer
	locker       ports.DistributedLocker
	lockTTL      time.Duration
	hooks        domain.LifecycleHooks
	middleware   []graph.Middleware
	logger       *slog.Logger
	maxSteps     int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithCheckpointer sets where thread checkpoints are stored. Defaults to memory.
func WithCheckpointer(cp ports.Checkpointer) Option {
	return func(e *Engine) {
		e.checkpointer = cp
	}
}

// WithLocker serializes runs of a thread across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL bounds how long a distributed thread lock is held.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMiddleware wraps every node execution, including nodes of subgraphs.
func WithMiddleware(mw ...graph.Middleware) Option {
	return func(e *Engine) {
		e.middleware = append(e.middleware, mw...)
	}
}

// WithMaxSteps sets the per-run step budget.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// New initializes an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{graphs: make(map[string]*graph.Graph)}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.checkpointer == nil {
		e.checkpointer = memory.New()
	}

	e.exec = runtime.NewExecutor(
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithMiddleware(e.middleware...),
		runtime.WithMaxSteps(e.maxSteps),
	)

	threadOpts := []thread.Option{thread.WithLogger(e.logger)}
	if e.locker != nil {
		threadOpts = append(threadOpts, thread.WithLocker(e.locker))
	}
	if e.lockTTL > 0 {
		threadOpts = append(threadOpts, thread.WithLockTTL(e.lockTTL))
	}
	e.threads = thread.NewManager(e.checkpointer, threadOpts...)
	return e
}

// Input builds a run input holding msgs.
func Input(msgs ...domain.Message) domain.State {
	return domain.State{domain.MessagesKey: msgs}
}

// Register adds g under its name. Names are unique.
func (e *Engine) Register(g *graph.Graph) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.graphs[g.Name()]; exists {
		return fmt.Errorf("graph %q already registered", g.Name())
	}
	e.graphs[g.Name()] = g
	e.order = append(e.order, g.Name())
	return nil
}

// Graph returns the graph registered under name.
func (e *Engine) Graph(name string) (*graph.Graph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
	}
	return g, nil
}

// Graphs returns the registered graphs in registration order.
func (e *Engine) Graphs() []*graph.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*graph.Graph, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.graphs[name])
	}
	return out
}

// Subgraph wraps g as a node that runs with this engine's executor.
func (e *Engine) Subgraph(g *graph.Graph, opts ...SubgraphOption) graph.Node {
	return runtime.NewSubgraph(g, e.exec, opts...)
}

// Run executes the named graph on threadID until it terminates. An empty threadID
// starts a new thread. Runs of one thread are serialized.
func (e *Engine) Run(ctx context.Context, graphName, threadID string, input domain.State) (*Outcome, error) {
	return e.run(ctx, graphName, threadID, input, nil)
}

// Stream executes the named graph and yields every step event. Breaking out of the
// loop stops the run after the current step, leaving the thread suspended.
// A run failure is yielded once as the error of a zero event.
func (e *Engine) Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error] {
	return func(yield func(domain.StepEvent, error) bool) {
		stopped := false
		_, err := e.run(ctx, graphName, threadID, input, func(ev domain.StepEvent) bool {
			if !yield(ev, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(domain.StepEvent{ThreadID: threadID, Graph: graphName}, err)
		}
	}
}

func (e *Engine) run(ctx context.Context, graphName, threadID string, input domain.State, yield func(domain.StepEvent) bool) (*Outcome, error) {
	g, err := e.Graph(graphName)
	if err != nil {
		return nil, err
	}
	if threadID == "" {
		threadID = thread.NewID()
	}

	var out *Outcome
	err = e.threads.WithLock(ctx, threadID, func(ctx context.Context) error {
		var runErr error
		out, runErr = e.exec.Stream(ctx, runtime.Request{
			Graph:        g,
			ThreadID:     threadID,
			Input:        input,
			Checkpointer: e.checkpointer,
		}, yield)
		return runErr
	})
	return out, err
}

// ListThreads returns every thread with at least one checkpoint.
func (e *Engine) ListThreads(ctx context.Context) ([]string, error) {
	return e.threads.List(ctx)
}

// GetThreadState returns the latest checkpoint of a thread.
func (e *Engine) GetThreadState(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.threads.Latest(ctx, threadID)
}

// ListCheckpoints returns the checkpoints of a thread in step order.
func (e *Engine) ListCheckpoints(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	return e.threads.History(ctx, threadID)
}

// DeleteThread removes every checkpoint of a thread. Threads are never deleted implicitly.
func (e *Engine) DeleteThread(ctx context.Context, threadID string) error {
	return e.threads.Delete(ctx, threadID)
}

// Checkpointer returns the store backing the engine's threads.
func (e *Engine) Checkpointer() ports.Checkpointer {
	return e.checkpointer
}

// MaxSteps returns the effective per-run step budget.
func (e *Engine) MaxSteps() int {
	return e.exec.MaxSteps()
}
