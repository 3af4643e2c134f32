package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameThread(t *testing.T) {
	mgr := NewManager(memory.New())
	ctx := context.Background()

	var active, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "t1", func(ctx context.Context) error {
				if active.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestManager_DistinctThreadsRunConcurrently(t *testing.T) {
	mgr := NewManager(memory.New())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "a", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread b blocked behind thread a")
	}
	close(release)
}

func TestManager_LockEntriesAreReleased(t *testing.T) {
	mgr := NewManager(memory.New())
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("thread-%d", i)
		_ = mgr.WithLock(ctx, id, func(ctx context.Context) error { return nil })
		_ = mgr.Delete(ctx, id)
	}
	assert.Empty(t, mgr.locks)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	lockErr  error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked = append(l.unlocked, key)
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	mgr := NewManager(memory.New(), WithLocker(locker), WithLockTTL(time.Second))

	require.NoError(t, mgr.WithLock(context.Background(), "t1", func(ctx context.Context) error { return nil }))
	assert.Equal(t, []string{"t1"}, locker.locked)
	assert.Equal(t, []string{"t1"}, locker.unlocked)

	locker.lockErr = errors.New("redis down")
	called := false
	err := mgr.WithLock(context.Background(), "t2", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "redis down")
	assert.False(t, called)
}

func TestManager_Delegation(t *testing.T) {
	cp := memory.New()
	mgr := NewManager(cp)
	ctx := context.Background()

	require.NoError(t, cp.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Step: 1, State: domain.State{"x": 1}, Next: domain.End}))

	latest, err := mgr.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Step)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)

	require.NoError(t, mgr.Delete(ctx, "t1"))
	_, err = mgr.History(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	assert.Same(t, cp, mgr.Checkpointer())
	assert.NotEmpty(t, NewID())
}
