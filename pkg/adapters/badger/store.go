// Package badger persists checkpoints in an embedded BadgerDB key-value store.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// Keys are "cp/<thread>/<zero-padded step>", so a prefix scan yields a thread's
// checkpoints in step order.
const keyPrefix = "cp/"

// Options configures Open.
type Options struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger // Nil disables badger's internal logging
}

// slogAdapter adapts slog.Logger to badger.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *slogAdapter) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Checkpointer implements ports.Checkpointer on BadgerDB.
type Checkpointer struct {
	db *badger.DB
}

// Open opens a BadgerDB according to opts.
func Open(opts Options) (*Checkpointer, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&slogAdapter{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Checkpointer{db: db}, nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Checkpointer {
	return &Checkpointer{db: db}
}

// Thread ids are path-escaped so "/" never appears inside the thread segment.
func threadPrefix(threadID string) []byte {
	return []byte(keyPrefix + url.PathEscape(threadID) + "/")
}

func checkpointKey(threadID string, step int) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, url.PathEscape(threadID), step))
}

// latestItem returns the last item under prefix, or nil.
func latestItem(txn *badger.Txn, prefix []byte) *badger.Item {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	// Reverse iteration starts from the first key not greater than the seek key.
	it.Seek(append(append([]byte{}, prefix...), 0xFF))
	if it.ValidForPrefix(prefix) {
		return it.Item()
	}
	return nil
}

// Save writes cp in a transaction. Concurrent writers of the same thread surface
// as domain.ErrCheckpointConflict.
func (c *Checkpointer) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := domain.EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if item := latestItem(txn, threadPrefix(cp.ThreadID)); item != nil {
			var latest *domain.Checkpoint
			if err := item.Value(func(val []byte) error {
				var err error
				latest, err = domain.DecodeCheckpoint(val)
				return err
			}); err != nil {
				return err
			}
			if latest.Step >= cp.Step {
				return domain.ErrCheckpointConflict
			}
		}
		return txn.Set(checkpointKey(cp.ThreadID, cp.Step), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrCheckpointConflict
	}
	return err
}

// LoadLatest returns the checkpoint with the highest step.
func (c *Checkpointer) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := c.db.View(func(txn *badger.Txn) error {
		item := latestItem(txn, threadPrefix(threadID))
		if item == nil {
			return domain.ErrThreadNotFound
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		cp, err = domain.DecodeCheckpoint(val)
		return err
	})
	return cp, err
}

// ListThreads scans keys only and returns distinct thread ids in key order.
func (c *Checkpointer) ListThreads(ctx context.Context) ([]string, error) {
	threads := []string{}
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			idx := strings.LastIndex(key, "/")
			if idx < 0 {
				continue
			}
			thread, err := url.PathUnescape(key[:idx])
			if err != nil {
				continue
			}
			if n := len(threads); n == 0 || threads[n-1] != thread {
				threads = append(threads, thread)
			}
		}
		return nil
	})
	return threads, err
}

// History returns the thread's checkpoints in step order.
func (c *Checkpointer) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	var out []*domain.Checkpoint
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := threadPrefix(threadID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			cp, err := domain.DecodeCheckpoint(val)
			if err != nil {
				return err
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return out, nil
}

// Delete removes every key of the thread.
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	return c.db.DropPrefix(threadPrefix(threadID))
}

// Close closes the database.
func (c *Checkpointer) Close() error {
	return c.db.Close()
}
