// Package sqlite persists checkpoints in a SQL database through gorm, using the
// pure-Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// checkpointRow is one record per (thread_id, step).
type checkpointRow struct {
	ThreadID  string `gorm:"primaryKey;size:255"`
	Step      int    `gorm:"primaryKey;autoIncrement:false"`
	State     []byte `gorm:"not null"`
	Timestamp time.Time
	Graph     string `gorm:"size:255"`
	Node      string `gorm:"size:255"`
	Next      string `gorm:"size:255"`
	Source    string `gorm:"size:32"`
}

func (checkpointRow) TableName() string { return "checkpoints" }

// Checkpointer implements ports.Checkpointer on top of gorm.
type Checkpointer struct {
	db *gorm.DB
}

// Open opens (or creates) a SQLite database at dsn and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(dsn string) (*Checkpointer, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; in-memory databases are per connection.
	sqlDB.SetMaxOpenConns(1)
	return NewFromDB(db)
}

// NewFromDB wraps an existing gorm connection and migrates the schema.
func NewFromDB(db *gorm.DB) (*Checkpointer, error) {
	if err := db.AutoMigrate(&checkpointRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Checkpointer{db: db}, nil
}

// Save inserts cp after checking it extends the thread.
func (c *Checkpointer) Save(ctx context.Context, cp *domain.Checkpoint) error {
	state, err := domain.EncodeState(cp.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	row := checkpointRow{
		ThreadID:  cp.ThreadID,
		Step:      cp.Step,
		State:     state,
		Timestamp: cp.Timestamp,
		Graph:     cp.Graph,
		Node:      cp.Node,
		Next:      cp.Next,
		Source:    cp.Source,
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest sql.NullInt64
		if err := tx.Model(&checkpointRow{}).
			Select("MAX(step)").
			Where("thread_id = ?", cp.ThreadID).
			Row().Scan(&latest); err != nil {
			return fmt.Errorf("failed to read latest step: %w", err)
		}
		if latest.Valid && int(latest.Int64) >= cp.Step {
			return domain.ErrCheckpointConflict
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert checkpoint: %w", err)
		}
		return nil
	})
}

// LoadLatest returns the row with the highest step.
func (c *Checkpointer) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := c.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return row.toDomain()
}

// ListThreads returns distinct thread ids.
func (c *Checkpointer) ListThreads(ctx context.Context) ([]string, error) {
	threads := []string{}
	err := c.db.WithContext(ctx).
		Model(&checkpointRow{}).
		Distinct("thread_id").
		Order("thread_id").
		Pluck("thread_id", &threads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// History returns the thread's rows in step order.
func (c *Checkpointer) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	var rows []checkpointRow
	err := c.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	out := make([]*domain.Checkpoint, 0, len(rows))
	for _, row := range rows {
		cp, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes every row of the thread.
func (c *Checkpointer) Delete(ctx context.Context, threadID string) error {
	return c.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&checkpointRow{}).Error
}

// Close closes the underlying connection pool.
func (c *Checkpointer) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r checkpointRow) toDomain() (*domain.Checkpoint, error) {
	state, err := domain.DecodeState(r.State)
	if err != nil {
		return nil, err
	}
	return &domain.Checkpoint{
		ThreadID:  r.ThreadID,
		Step:      r.Step,
		State:     state,
		Timestamp: r.Timestamp,
		Graph:     r.Graph,
		Node:      r.Node,
		Next:      r.Next,
		Source:    r.Source,
	}, nil
}
