// Package store persists task records and their latest progress snapshot.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanq16/vdl/internal/config"
	"github.com/tanq16/vdl/internal/types"
)

var ErrNotFound = errors.New("task not found")

// ProgressStore is shared by the orchestrator and the controllers it runs.
// Save only touches the snapshot of an existing record; Put replaces the
// whole record.
type ProgressStore interface {
	GetAll(ctx context.Context) ([]types.Record, error)
	Get(ctx context.Context, id string) (types.Record, error)
	Put(ctx context.Context, rec types.Record) error
	Save(ctx context.Context, snap types.Snapshot) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (ProgressStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// accepts reports whether next may overwrite current. A finished download
// is never pulled back into flight by a late progress write.
func accepts(current, next types.Snapshot) bool {
	return !(current.Status == types.StatusSuccess && next.Status.InFlight())
}
