package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/agentgraph/internal/config"
	"github.com/aretw0/agentgraph/pkg/adapters/badger"
	"github.com/aretw0/agentgraph/pkg/adapters/file"
	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/adapters/redis"
	"github.com/aretw0/agentgraph/pkg/adapters/sqlite"
	"github.com/aretw0/agentgraph/pkg/persistence/middleware"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// Persistence is the configured checkpointer plus an optional distributed locker.
type Persistence struct {
	Checkpointer ports.Checkpointer
	Locker       ports.DistributedLocker
	close        func() error
}

// Close releases the underlying store.
func (p *Persistence) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// NewPersistence opens the checkpointer selected by cfg.Driver and applies the
// redaction and encryption middleware.
func NewPersistence(ctx context.Context, cfg config.CheckpointerConfig, logger *slog.Logger) (*Persistence, error) {
	p, err := openDriver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var mw []middleware.Middleware
	if len(cfg.Redact) > 0 {
		redact, err := middleware.NewPIIMiddleware(cfg.Redact)
		if err != nil {
			return nil, errors.Join(err, p.Close())
		}
		mw = append(mw, redact)
	}
	if cfg.EncryptionKeyEnv != "" {
		key, err := base64.StdEncoding.DecodeString(os.Getenv(cfg.EncryptionKeyEnv))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("invalid key in %s: %w", cfg.EncryptionKeyEnv, err), p.Close())
		}
		encrypt, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("invalid key in %s: %w", cfg.EncryptionKeyEnv, err), p.Close())
		}
		mw = append(mw, encrypt)
	}
	p.Checkpointer = middleware.Chain(p.Checkpointer, mw...)
	return p, nil
}

func openDriver(ctx context.Context, cfg config.CheckpointerConfig, logger *slog.Logger) (*Persistence, error) {
	switch cfg.Driver {
	case "memory", "":
		return &Persistence{Checkpointer: memory.New()}, nil

	case "file":
		return &Persistence{Checkpointer: file.New(cfg.Path)}, nil

	case "sqlite":
		cp, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite checkpointer: %w", err)
		}
		return &Persistence{Checkpointer: cp, close: cp.Close}, nil

	case "badger":
		cp, err := badger.Open(badger.Options{Path: filepath.Clean(cfg.Path), Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger checkpointer: %w", err)
		}
		return &Persistence{Checkpointer: cp, close: cp.Close}, nil

	case "redis":
		rc := cfg.Redis
		cp := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix))
		if err := cp.Client().Ping(ctx).Err(); err != nil {
			_ = cp.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", rc.Addr, err)
		}
		p := &Persistence{Checkpointer: cp, close: cp.Close}
		if rc.Lock {
			p.Locker = redis.NewLocker(cp.Client(), rc.Prefix)
		}
		logger.Debug("redis checkpointer connected", "addr", rc.Addr, "lock", rc.Lock)
		return p, nil
	}
	return nil, fmt.Errorf("unknown checkpointer driver %q", cfg.Driver)
}
