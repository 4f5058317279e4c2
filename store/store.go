// Package store persists value tables and finished training runs
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeu5/crm/types"
)

var (
	// ErrNotInitialized is returned by stores used before Init
	ErrNotInitialized = errors.New("store is not initialized")
	// ErrNotFound is returned when loading a table that was never saved
	ErrNotFound = errors.New("not found")
)

// Snapshotter is a value table that can be flattened and restored,
// keyed by types.State.Hash
type Snapshotter interface {
	Snapshot() map[string][]float64
	Restore(map[string][]float64) error
}

// TableStore persists value table snapshots under a name
type TableStore interface {
	SaveTable(ctx context.Context, name string, table map[string][]float64) error
	LoadTable(ctx context.Context, name string) (map[string][]float64, error)
}

// Save snapshots the table into the store
func Save(ctx context.Context, s TableStore, name string, table Snapshotter) error {
	return s.SaveTable(ctx, name, table.Snapshot())
}

// Load restores a previously saved table
func Load(ctx context.Context, s TableStore, name string, table Snapshotter) error {
	snapshot, err := s.LoadTable(ctx, name)
	if err != nil {
		return err
	}
	if err := table.Restore(snapshot); err != nil {
		return fmt.Errorf("restoring %s: %w", name, err)
	}
	return nil
}

// NewResultStore builds an initialized run store of the given kind
func NewResultStore(ctx context.Context, kind, path string) (types.ResultStore, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s := NewSQLiteStore(path)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes stores holding resources
func CloseIfSupported(s interface{}) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
