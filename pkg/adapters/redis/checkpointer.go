package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "agentgraph:"

// Checkpointer implements ports.Checkpointer using Redis.
//
// Layout per thread: a hash "<prefix>cp:<thread>" mapping step to the encoded
// checkpoint, and "<prefix>latest:<thread>" holding the highest step. Thread ids
// are indexed in the sorted set "<prefix>threads" scored by expiry.
type Checkpointer struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithTTL expires idle threads after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Checkpointer) { c.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Checkpointer) { c.prefix = prefix }
}

// New connects to Redis and creates a checkpointer.
func New(address, password string, db int, opts ...Option) *Checkpointer {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a checkpointer over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Checkpointer {
	c := &Checkpointer{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client returns the underlying client, e.g. to build a Locker sharing the connection.
func (c *Checkpointer) Client() *backend.Client { return c.client }

func (c *Checkpointer) historyKey(threadID string) string { return c.prefix + "cp:" + threadID }
func (c *Checkpointer) latestKey(threadID string) string  { return c.prefix + "latest:" + threadID }
func (c *Checkpointer) indexKey() string                  { return c.prefix + "threads" }

// Save writes cp in a MULTI/EXEC transaction guarded by WATCH on the latest step.
func (c *Checkpointer) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := domain.EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	latestKey := c.latestKey(cp.ThreadID)
	historyKey := c.historyKey(cp.ThreadID)

	score := float64(time.Now().Add(c.ttl).Unix())
	if c.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	err = c.client.Watch(ctx, func(tx *backend.Tx) error {
		latest, err := tx.Get(ctx, latestKey).Int()
		switch {
		case errors.Is(err, backend.Nil):
		case err != nil:
			return fmt.Errorf("failed to read latest step: %w", err)
		case latest >= cp.Step:
			return domain.ErrCheckpointConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, historyKey, strconv.Itoa(cp.Step), data)
			pipe.Set(ctx, latestKey, cp.Step, c.ttl)
			if c.ttl > 0 {
				pipe.Expire(ctx, historyKey, c.ttl)
			}
			pipe.ZAdd(ctx, c.indexKey(), backend.Z{Score: score, Member: cp.ThreadID})
			return nil
		})
		return err
	}, latestKey)

	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrCheckpointConflict
	}
	if err != nil && !errors.Is(err, domain.ErrCheckpointConflict) {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return err
}

// LoadLatest returns the newest checkpoint of the thread.
func (c *Checkpointer) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	step, err := c.client.Get(ctx, c.latestKey(threadID)).Result()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest step from redis: %w", err)
	}

	data, err := c.client.HGet(ctx, c.historyKey(threadID), step).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint from redis: %w", err)
	}
	return domain.DecodeCheckpoint(data)
}

// ListThreads prunes expired entries from the index and returns the rest.
func (c *Checkpointer) ListThreads(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := c.client.ZRemRangeByScore(ctx, c.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}
	threads, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	sort.Strings(threads)
	return threads, nil
}

// History returns every checkpoint of the thread in step order.
func (c *Checkpointer) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	raw, err := c.client.HGetAll(ctx, c.historyKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history from redis: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	out := make([]*domain.Checkpoint, 0, len(raw))
	for _, data := range raw {
		cp, err := domain.DecodeCheckpoint([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Delete removes the thread's checkpoints and index entry.
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.historyKey(threadID), c.latestKey(threadID))
	pipe.ZRem(ctx, c.indexKey(), threadID)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (c *Checkpointer) Close() error {
	return c.client.Close()
}
