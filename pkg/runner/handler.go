package runner

import (
	"context"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Input reads the next user turn. io.EOF ends the session.
	Input(ctx context.Context) (string, error)

	// Output presents one step event of the running turn.
	Output(ctx context.Context, event domain.StepEvent) error

	// SystemOutput presents a meta-message (errors, status) distinct from content.
	SystemOutput(ctx context.Context, msg string) error
}
