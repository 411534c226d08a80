package storage

import (
	"context"
	"errors"
	"strings"

	logx "github.com/VK79/Radar12/pkg/logx"
)

// Store is the cursor persistence API.
//
// Cursors are monotonic: Commit never moves a source's cursor backwards,
// regardless of what the caller passes. Get reports found=false for a
// source that has never committed (the "beginning" sentinel).
type Store interface {
	Get(ctx context.Context, source string) (id int64, found bool, err error)
	Commit(ctx context.Context, source string, id int64) error
	Keys(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, keep []string) (deleted int64, err error)
	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return newMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
