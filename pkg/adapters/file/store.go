package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/agentgraph/pkg/domain"
)

const ext = ".json"

// Checkpointer implements ports.Checkpointer on the local filesystem.
// Each thread is a directory holding one file per step, named by the zero-padded step.
type Checkpointer struct {
	BasePath string

	mu sync.Mutex // Serializes the step check with the write
}

// New creates a file checkpointer rooted at basePath.
// If basePath is empty, it defaults to ".agentgraph/threads".
func New(basePath string) *Checkpointer {
	if basePath == "" {
		basePath = filepath.Join(".agentgraph", "threads")
	}
	return &Checkpointer{BasePath: basePath}
}

// ErrInvalidThreadID is returned for ids that cannot name a thread directory.
var ErrInvalidThreadID = errors.New("invalid thread id")

// dirName escapes threadID into one path element. A leading dot is escaped too,
// so "." and ".." never name the base directory or its parent.
func dirName(threadID string) string {
	name := url.PathEscape(threadID)
	name = strings.ReplaceAll(name, `\`, "%5C")
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

func (c *Checkpointer) threadDir(threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidThreadID)
	}
	name := dirName(threadID)
	if !filepath.IsLocal(name) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadID, threadID)
	}
	return filepath.Join(c.BasePath, name), nil
}

func stepFile(step int) string {
	return fmt.Sprintf("%010d%s", step, ext)
}

// steps returns the stored step numbers of a thread in ascending order.
func (c *Checkpointer) steps(threadID string) ([]int, error) {
	dir, err := c.threadDir(threadID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read thread directory: %w", err)
	}
	var steps []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != ext {
			continue
		}
		step, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// Save writes the checkpoint atomically: temp file, fsync, rename.
func (c *Checkpointer) Save(ctx context.Context, cp *domain.Checkpoint) error {
	dir, err := c.threadDir(cp.ThreadID)
	if err != nil {
		return err
	}
	data, err := domain.EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	steps, err := c.steps(cp.ThreadID)
	if err != nil {
		return err
	}
	if n := len(steps); n > 0 && steps[n-1] >= cp.Step {
		return domain.ErrCheckpointConflict
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, stepFile(cp.Step))); err != nil {
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	return nil
}

func (c *Checkpointer) read(threadID string, step int) (*domain.Checkpoint, error) {
	dir, err := c.threadDir(threadID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, stepFile(step)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	return domain.DecodeCheckpoint(data)
}

// LoadLatest returns the checkpoint with the highest step.
func (c *Checkpointer) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	steps, err := c.steps(threadID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return c.read(threadID, steps[len(steps)-1])
}

// History returns the thread's checkpoints in step order.
func (c *Checkpointer) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	steps, err := c.steps(threadID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	out := make([]*domain.Checkpoint, 0, len(steps))
	for _, step := range steps {
		cp, err := c.read(threadID, step)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// ListThreads returns the ids of thread directories.
func (c *Checkpointer) ListThreads(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	threads := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		threads = append(threads, id)
	}
	sort.Strings(threads)
	return threads, nil
}

// Delete removes the thread directory.
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	dir, err := c.threadDir(threadID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}
