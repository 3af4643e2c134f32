package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/agentgraph/internal/config"
	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
)

// NewLogger builds the application logger from cfg. Logs go to stderr so
// stdout stays free for conversation output and NDJSON.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.Format(cfg.Format)), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Enter Node", "thread_id", e.ThreadID, "graph", e.Graph, "node", e.Node, "kind", e.Kind, "step", e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.Debug("Leave Node (Error)", "node", e.Node, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.Debug("Leave Node", "node", e.Node, "duration", e.Duration)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.Debug("Tool Call", "tool_name", e.ToolName, "call_id", e.CallID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			if e.IsError {
				logger.Debug("Tool Return (Error)", "tool_name", e.ToolName, "err", e.Result)
			} else {
				logger.Debug("Tool Return (Success)", "tool_name", e.ToolName, "duration", e.Duration)
			}
		},
		OnCheckpoint: func(ctx context.Context, cp *domain.Checkpoint) {
			logger.Debug("Checkpoint", "thread_id", cp.ThreadID, "step", cp.Step, "source", cp.Source)
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || domain.KindOf(err) == domain.KindCancelled
}

// handleExecutionError maps interruptions to a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
