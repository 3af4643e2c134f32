package thread

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder keeps a distributed thread lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the number of goroutines using it.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates thread access over a Checkpointer.
// Unused lock entries are released by reference counting.
type Manager struct {
	checkpointer ports.Checkpointer

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = locker }
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a thread manager backed by checkpointer.
func NewManager(checkpointer ports.Checkpointer, opts ...Option) *Manager {
	m := &Manager{
		checkpointer: checkpointer,
		locks:        make(map[string]*lockEntry),
		lockTTL:      DefaultLockTTL,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh thread identity.
func NewID() string {
	return uuid.NewString()
}

func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// WithLock runs fn while holding the thread's lock.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled mid-run.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Latest returns the thread's most recent checkpoint.
func (m *Manager) Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return m.checkpointer.LoadLatest(ctx, threadID)
}

// History returns the thread's checkpoints in step order.
func (m *Manager) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	return m.checkpointer.History(ctx, threadID)
}

// List returns every known thread id.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.checkpointer.ListThreads(ctx)
}

// Delete removes a thread once no run holds it.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.checkpointer.Delete(ctx, threadID)
	})
}

// Checkpointer returns the underlying store.
func (m *Manager) Checkpointer() ports.Checkpointer {
	return m.checkpointer
}
