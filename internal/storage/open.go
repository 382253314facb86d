package storage

import (
	"context"
	"errors"
	"strings"

	"ontime/pkg/logx"
)

// Store is the persistence API used by the coordinator and the CLI.
type Store interface {
	AppendTransition(ctx context.Context, t Transition) error
	// Transitions returns up to limit records, newest first.
	Transitions(ctx context.Context, limit int) ([]Transition, error)
	PutSnapshot(ctx context.Context, scopeID, kind string, data []byte) error
	GetSnapshot(ctx context.Context, scopeID, kind string) (data []byte, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = defaultMaxTransitions
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "diskv", "file":
		return openDiskv(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
