package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Checkpointer implements ports.Checkpointer in memory.
// Safe for concurrent use; checkpoints are copied on write and on read.
type Checkpointer struct {
	mu      sync.RWMutex
	threads map[string][]*domain.Checkpoint
}

// New creates an empty in-memory checkpointer.
func New() *Checkpointer {
	return &Checkpointer{threads: make(map[string][]*domain.Checkpoint)}
}

// Save appends cp to its thread.
func (c *Checkpointer) Save(ctx context.Context, cp *domain.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.threads[cp.ThreadID]
	if n := len(history); n > 0 && history[n-1].Step >= cp.Step {
		return domain.ErrCheckpointConflict
	}
	c.threads[cp.ThreadID] = append(history, cp.Clone())
	return nil
}

// LoadLatest returns the newest checkpoint of the thread.
func (c *Checkpointer) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.threads[threadID]
	if len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return history[len(history)-1].Clone(), nil
}

// ListThreads returns the known thread ids, sorted.
func (c *Checkpointer) ListThreads(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.threads))
	for id := range c.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// History returns copies of the thread's checkpoints in step order.
func (c *Checkpointer) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.threads[threadID]
	if len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	out := make([]*domain.Checkpoint, len(history))
	for i, cp := range history {
		out[i] = cp.Clone()
	}
	return out, nil
}

// Delete drops the thread.
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, threadID)
	return nil
}
