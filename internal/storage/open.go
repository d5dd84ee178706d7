package storage

import (
	"context"
	"errors"
	"strings"

	logx "livewatch/pkg/logx"
)

// Store holds per-category subscriber sets.
type Store interface {
	// AddSubscriber reports whether id was newly added to category.
	AddSubscriber(ctx context.Context, category Category, id int64) (bool, error)
	// RemoveSubscription reports whether id was subscribed to category.
	RemoveSubscription(ctx context.Context, category Category, id int64) (bool, error)
	// RemoveSubscriber drops id from every category.
	RemoveSubscriber(ctx context.Context, id int64) error
	ListSubscribers(ctx context.Context, category Category) ([]int64, error)
	Subscriptions(ctx context.Context, id int64) ([]Category, error)
	Counts(ctx context.Context) (map[Category]int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "none", "disabled":
		return nil, ErrDisabled
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
