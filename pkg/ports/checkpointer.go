package ports

import (
	"context"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Checkpointer persists checkpoints keyed by thread.
//
// Checkpoints of a thread are totally ordered by step. Save is atomic from the
// caller's perspective: LoadLatest never observes a partially written checkpoint.
// Implementations must be safe for concurrent use across threads.
type Checkpointer interface {
	// Save appends cp. It returns domain.ErrCheckpointConflict if cp.Step is not
	// greater than the latest stored step for the thread.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// LoadLatest returns the checkpoint with the highest step.
	// Returns domain.ErrThreadNotFound if the thread has none.
	LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// ListThreads returns the ids of all threads with at least one checkpoint.
	ListThreads(ctx context.Context) ([]string, error)

	// History returns the thread's checkpoints in ascending step order.
	// Returns domain.ErrThreadNotFound if the thread has none.
	History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error)

	// Delete removes every checkpoint of the thread. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
