package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/thread"
)

// Engine is the part of the agentgraph facade the runner drives.
type Engine interface {
	Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error]
}

// Runner handles the conversation loop of one thread.
type Runner struct {
	engine     Engine
	graph      string
	threadID   string
	handler    IOHandler
	logger     *slog.Logger
	interrupts <-chan struct{}
}

// New creates a Runner for graphName. The default handler is text on stdin/stdout.
func New(engine Engine, graphName string, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		graph:  graphName,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.threadID == "" {
		r.threadID = thread.NewID()
	}
	return r
}

// ThreadID returns the thread the runner converses on.
func (r *Runner) ThreadID() string { return r.threadID }

// Run loops until the input is exhausted, the user types exit or quit, or ctx is done.
// Failed turns are reported through the handler and do not end the session.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := r.handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}

		clean, err := SanitizeInput(text)
		if err != nil {
			r.logger.Warn("input rejected", "err", err, "size", len(text))
			if err := r.handler.SystemOutput(ctx, fmt.Sprintf("Input rejected: %v", err)); err != nil {
				return err
			}
			continue
		}

		if err := r.Turn(ctx, clean); err != nil {
			return err
		}
	}
}

// Turn runs the graph once for text. Run errors and interrupts are reported to the
// handler; only handler failures are returned.
func (r *Runner) Turn(ctx context.Context, text string) error {
	turnCtx, stop := r.interruptible(ctx)
	defer stop()

	input := domain.State{domain.MessagesKey: []domain.Message{domain.Human(text)}}
	for event, err := range r.engine.Stream(turnCtx, r.graph, r.threadID, input) {
		if err != nil {
			r.logger.Debug("turn failed", "thread_id", r.threadID, "err", err)
			msg := fmt.Sprintf("Error: %v", err)
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				msg = "Interrupted. The conversation can continue from the last step."
			}
			return r.handler.SystemOutput(ctx, msg)
		}
		if err := r.handler.Output(ctx, event); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	return nil
}

// interruptible derives a context cancelled by the next interrupt.
func (r *Runner) interruptible(ctx context.Context) (context.Context, func()) {
	if r.interrupts == nil {
		sm := NewSignalManager(ctx)
		return sm.Context(), sm.Stop
	}
	turnCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-r.interrupts:
			cancel()
		case <-turnCtx.Done():
		}
	}()
	return turnCtx, cancel
}
