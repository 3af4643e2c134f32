package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointerContract verifies that cp honours the Checkpointer contract.
func RunCheckpointerContract(t *testing.T, cp Checkpointer) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")

	checkpoint := func(thread string, step int, state domain.State) *domain.Checkpoint {
		return &domain.Checkpoint{
			ThreadID:  thread,
			Step:      step,
			State:     state,
			Timestamp: time.Now().UTC().Truncate(time.Millisecond),
			Graph:     "contract",
			Node:      fmt.Sprintf("node-%d", step),
			Next:      domain.End,
			Source:    domain.SourceLoop,
		}
	}

	t.Run("Save and LoadLatest", func(t *testing.T) {
		thread := prefix + "-latest"
		for step := 1; step <= 3; step++ {
			require.NoError(t, cp.Save(ctx, checkpoint(thread, step, domain.State{
				domain.MessagesKey: []domain.Message{domain.Human(fmt.Sprintf("m%d", step))},
				"count":            step,
				"next":             "writer",
			})))
		}

		latest, err := cp.LoadLatest(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, 3, latest.Step)
		assert.Equal(t, "node-3", latest.Node)
		assert.Equal(t, domain.End, latest.Next)
		assert.Equal(t, 3, latest.State["count"], "values keep their Go type")
		assert.Equal(t, []domain.Message{domain.Human("m3")}, latest.State.Messages())
	})

	t.Run("Typed values survive storage", func(t *testing.T) {
		thread := prefix + "-typed"
		state := domain.State{
			"scores": []int{1, 2},
			"count":  int32(7),
			"limits": map[string]int{"steps": 25},
			"nested": map[string]any{"ratio": float32(0.5), "ids": []int64{1 << 40}},
		}
		require.NoError(t, cp.Save(ctx, checkpoint(thread, 1, state)))

		latest, err := cp.LoadLatest(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, state, latest.State)
		assert.IsType(t, []int{}, latest.State["scores"])
		assert.IsType(t, int32(0), latest.State["count"])
	})

	t.Run("LoadLatest unknown thread", func(t *testing.T) {
		_, err := cp.LoadLatest(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Steps must increase", func(t *testing.T) {
		thread := prefix + "-conflict"
		require.NoError(t, cp.Save(ctx, checkpoint(thread, 1, domain.State{"v": "a"})))
		require.NoError(t, cp.Save(ctx, checkpoint(thread, 2, domain.State{"v": "b"})))

		err := cp.Save(ctx, checkpoint(thread, 2, domain.State{"v": "c"}))
		assert.ErrorIs(t, err, domain.ErrCheckpointConflict)

		latest, err := cp.LoadLatest(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, "b", latest.State["v"], "rejected save leaves the latest checkpoint intact")
	})

	t.Run("History is ordered by step", func(t *testing.T) {
		thread := prefix + "-history"
		for _, step := range []int{1, 2, 5, 11} {
			require.NoError(t, cp.Save(ctx, checkpoint(thread, step, domain.State{"step": step})))
		}

		history, err := cp.History(ctx, thread)
		require.NoError(t, err)
		require.Len(t, history, 4)
		var steps []int
		for _, h := range history {
			steps = append(steps, h.Step)
			assert.Equal(t, thread, h.ThreadID)
		}
		assert.Equal(t, []int{1, 2, 5, 11}, steps)

		_, err = cp.History(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Returned checkpoints are isolated", func(t *testing.T) {
		thread := prefix + "-isolated"
		require.NoError(t, cp.Save(ctx, checkpoint(thread, 1, domain.State{"v": "original"})))

		first, err := cp.LoadLatest(ctx, thread)
		require.NoError(t, err)
		first.State["v"] = "mutated"

		second, err := cp.LoadLatest(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, "original", second.State["v"])
	})

	t.Run("ListThreads and Delete", func(t *testing.T) {
		id1 := prefix + "-list-1"
		id2 := prefix + "-list-2"
		require.NoError(t, cp.Save(ctx, checkpoint(id1, 1, domain.State{})))
		require.NoError(t, cp.Save(ctx, checkpoint(id2, 1, domain.State{})))

		threads, err := cp.ListThreads(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)

		require.NoError(t, cp.Delete(ctx, id1))
		_, err = cp.LoadLatest(ctx, id1)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)

		threads, err = cp.ListThreads(ctx)
		require.NoError(t, err)
		assert.NotContains(t, threads, id1)
		assert.Contains(t, threads, id2)

		assert.NoError(t, cp.Delete(ctx, prefix+"-never-existed"))
		require.NoError(t, cp.Delete(ctx, id2))
	})

	t.Run("Concurrent threads", func(t *testing.T) {
		const threads, steps = 4, 5
		var wg sync.WaitGroup
		errs := make(chan error, threads*steps)
		for i := 0; i < threads; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				thread := fmt.Sprintf("%s-concurrent-%d", prefix, i)
				for step := 1; step <= steps; step++ {
					if err := cp.Save(ctx, checkpoint(thread, step, domain.State{"step": step})); err != nil {
						errs <- err
					}
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := 0; i < threads; i++ {
			latest, err := cp.LoadLatest(ctx, fmt.Sprintf("%s-concurrent-%d", prefix, i))
			require.NoError(t, err)
			assert.Equal(t, steps, latest.Step)
			assert.Equal(t, steps, latest.State["step"])
		}
	})
}
