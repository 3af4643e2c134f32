package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// DefaultMaxSteps bounds a single run when no budget is configured.
const DefaultMaxSteps = 25

// Executor runs graphs. It holds no per-run state and is safe for concurrent use.
type Executor struct {
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	middleware []graph.Middleware
	maxSteps   int
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) ExecutorOption {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithMiddleware wraps every node execution. The first middleware is outermost.
func WithMiddleware(mw ...graph.Middleware) ExecutorOption {
	return func(e *Executor) {
		e.middleware = append(e.middleware, mw...)
	}
}

// WithMaxSteps sets the per-run step budget. Non-positive values keep the default.
func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithClock overrides the checkpoint timestamp source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:   logging.NewNop(),
		maxSteps: DefaultMaxSteps,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxSteps returns the configured step budget.
func (e *Executor) MaxSteps() int { return e.maxSteps }

// Request describes one run.
type Request struct {
	Graph    *graph.Graph
	ThreadID string
	Input    domain.State
	// Checkpointer persists every step. Nil runs are ephemeral and always start at
	// the entry node.
	Checkpointer ports.Checkpointer
	// Namespace names the enclosing subgraph nodes of a nested run.
	Namespace []string
	// Hooks are invoked in addition to the executor hooks.
	Hooks domain.LifecycleHooks
}

// Outcome is the result of a run. It is returned even when the run fails, so
// callers can inspect the state reached.
type Outcome struct {
	ThreadID string
	Status   domain.RunStatus
	State    domain.State
	// Step is the last persisted step number of the thread.
	Step int
	// Steps counts the node executions of this run.
	Steps int
	// Next is the node the thread resumes at, or End.
	Next string
}

// Run executes req to completion and returns its outcome.
func (e *Executor) Run(ctx context.Context, req Request) (*Outcome, error) {
	return e.Stream(ctx, req, nil)
}

// Stream executes req, calling yield with every step event, including the steps of
// nested subgraphs. When yield returns false the run stops after the current step
// and the thread is left suspended at the next node.
func (e *Executor) Stream(ctx context.Context, req Request, yield func(domain.StepEvent) bool) (*Outcome, error) {
	if req.Graph == nil {
		return nil, errors.New("runtime: nil graph")
	}
	r := &run{
		exec:  e,
		req:   req,
		g:     req.Graph,
		yield: yield,
		hooks: domain.ChainHooks(e.hooks, req.Hooks),
		log: e.logger.With(
			"thread_id", req.ThreadID,
			"graph", req.Graph.Name(),
		),
		out: &Outcome{ThreadID: req.ThreadID, Status: domain.StatusPending},
	}
	if len(req.Namespace) > 0 {
		r.log = r.log.With("namespace", req.Namespace)
	}
	return r.execute(ctx)
}

// run holds the mutable state of one execution. The merged state is only written
// by execute.
type run struct {
	exec    *Executor
	req     Request
	g       *graph.Graph
	yield   func(domain.StepEvent) bool
	hooks   domain.LifecycleHooks
	log     *slog.Logger
	out     *Outcome
	kinds   map[string]domain.NodeKind
	stopped bool
}

func (r *run) execute(ctx context.Context) (*Outcome, error) {
	state := domain.State{}
	baseStep := 0
	current := r.g.Entry()

	if r.req.Checkpointer != nil {
		latest, err := r.req.Checkpointer.LoadLatest(ctx, r.req.ThreadID)
		switch {
		case errors.Is(err, domain.ErrThreadNotFound):
		case err != nil:
			return r.fail(baseStep, current, fmt.Errorf("failed to load checkpoint: %w", err))
		default:
			state = latest.State.Clone()
			baseStep = latest.Step
			if latest.Pending() && (latest.Graph == "" || latest.Graph == r.g.Name()) {
				current = latest.Next
				r.log.Debug("resuming thread", "step", baseStep, "node", current)
			} else if len(r.req.Input) == 0 {
				// Nothing pending and nothing new: the thread is already complete.
				r.out.Status = domain.StatusCompleted
				r.out.State = state
				r.out.Step = baseStep
				r.out.Next = domain.End
				return r.out, nil
			}
		}
	}
	r.out.Step = baseStep
	r.out.State = state
	r.out.Next = current

	dirty := false
	if len(r.req.Input) > 0 {
		merged, err := domain.Merge(r.g.Schema(), state, r.req.Input)
		if err != nil {
			return r.fail(baseStep, current, err)
		}
		state = merged
		r.out.State = state
		dirty = true
	}

	r.kinds = make(map[string]domain.NodeKind)
	for _, d := range r.g.Nodes() {
		r.kinds[d.Name] = d.Kind
	}

	r.out.Status = domain.StatusRunning
	for steps := 0; ; steps++ {
		step := baseStep + steps + 1
		if steps >= r.exec.maxSteps {
			return r.failAndRecover(ctx, dirty, step, current, &domain.StepBudgetExceededError{Limit: r.exec.maxSteps})
		}
		if err := ctx.Err(); err != nil {
			return r.failAndRecover(ctx, dirty, step, current, err)
		}

		res, err := r.invoke(ctx, step, current, state)
		if err != nil {
			return r.failAndRecover(ctx, dirty, step, current, err)
		}
		next, err := domain.Merge(r.g.Schema(), state, res.Delta)
		if err != nil {
			return r.failAndRecover(ctx, dirty, step, current, err)
		}
		target, err := r.g.Resolve(current, res, next)
		if err != nil {
			return r.failAndRecover(ctx, dirty, step, current, err)
		}

		cp := &domain.Checkpoint{
			ThreadID:  r.req.ThreadID,
			Step:      step,
			State:     next,
			Timestamp: r.exec.now(),
			Graph:     r.g.Name(),
			Node:      current,
			Next:      target,
			Source:    domain.SourceLoop,
		}
		if err := r.save(ctx, cp); err != nil {
			return r.failAndRecover(ctx, dirty, step, current, err)
		}
		dirty = false
		state = next

		r.out.State = state
		r.out.Step = step
		r.out.Steps = steps + 1
		r.out.Next = target
		r.log.Debug("step completed", "step", step, "node", current, "next", target)

		r.emit(domain.StepEvent{
			ThreadID:  r.req.ThreadID,
			Graph:     r.g.Name(),
			Namespace: r.req.Namespace,
			Step:      step,
			Node:      current,
			Delta:     res.Delta,
			Next:      target,
			Timestamp: cp.Timestamp,
		})

		if target == domain.End {
			r.out.Status = domain.StatusCompleted
			r.log.Info("run completed", "step", step, "steps", r.out.Steps)
			return r.out, nil
		}
		if r.stopped {
			r.out.Status = domain.StatusSuspended
			r.log.Debug("run suspended by consumer", "step", step, "next", target)
			return r.out, nil
		}
		current = target
	}
}

// invoke runs one node with hooks, middleware and run info attached.
func (r *run) invoke(ctx context.Context, step int, name string, state domain.State) (graph.Result, error) {
	node, ok := r.g.Node(name)
	if !ok {
		return graph.Result{}, &domain.GraphIntegrityError{
			Graph:    r.g.Name(),
			Problems: []string{fmt.Sprintf("node %q is not declared", name)},
		}
	}
	if len(r.exec.middleware) > 0 {
		node = graph.Chain(r.exec.middleware...)(name, node)
	}

	nodeCtx := graph.WithRunInfo(ctx, graph.RunInfo{
		ThreadID:  r.req.ThreadID,
		Graph:     r.g.Name(),
		Node:      name,
		Step:      step,
		Namespace: r.req.Namespace,
		Schema:    r.g.Schema(),
		Hooks:     r.hooks,
		Logger:    r.log.With("node", name, "step", step),
		Observe:   r.observe,
	})

	event := &domain.NodeEvent{
		ThreadID:  r.req.ThreadID,
		Graph:     r.g.Name(),
		Node:      name,
		Kind:      r.kinds[name],
		Step:      step,
		Namespace: r.req.Namespace,
	}
	if r.hooks.OnNodeEnter != nil {
		r.hooks.OnNodeEnter(ctx, event)
	}
	start := time.Now()
	res, err := node.Execute(nodeCtx, state.Clone())
	if r.hooks.OnNodeLeave != nil {
		leave := *event
		leave.Duration = time.Since(start)
		leave.Err = err
		r.hooks.OnNodeLeave(ctx, &leave)
	}
	return res, err
}

func (r *run) save(ctx context.Context, cp *domain.Checkpoint) error {
	if r.req.Checkpointer == nil {
		return nil
	}
	// Persistence is not interrupted by cancellation so a finished step is never lost.
	if err := r.req.Checkpointer.Save(context.WithoutCancel(ctx), cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if r.hooks.OnCheckpoint != nil {
		r.hooks.OnCheckpoint(ctx, cp)
	}
	return nil
}

func (r *run) emit(ev domain.StepEvent) {
	if r.yield == nil || r.stopped {
		return
	}
	if !r.yield(ev) {
		r.stopped = true
	}
}

// observe forwards events of nested runs.
func (r *run) observe(ev domain.StepEvent) {
	r.emit(ev)
}

// failAndRecover fails the run. When merged input was never persisted, a recovery
// checkpoint pointing at the failing node keeps it so no history is dropped.
func (r *run) failAndRecover(ctx context.Context, dirty bool, step int, node string, cause error) (*Outcome, error) {
	if dirty && r.req.Checkpointer != nil {
		cp := &domain.Checkpoint{
			ThreadID:  r.req.ThreadID,
			Step:      step,
			State:     r.out.State,
			Timestamp: r.exec.now(),
			Graph:     r.g.Name(),
			Next:      node,
			Source:    domain.SourceInput,
		}
		if err := r.save(ctx, cp); err != nil {
			r.log.Warn("failed to save recovery checkpoint", "step", step, "err", err)
		} else {
			r.out.Step = step
			r.out.Next = node
		}
	}
	return r.fail(step, node, cause)
}

func (r *run) fail(step int, node string, cause error) (*Outcome, error) {
	r.out.Status = domain.StatusFailed
	err := &domain.RunError{
		ThreadID: r.req.ThreadID,
		Step:     step,
		Node:     node,
		Kind:     domain.KindOf(cause),
		Err:      cause,
	}
	r.log.Error("run failed", "step", step, "node", node, "kind", err.Kind, "err", cause)
	return r.out, err
}
