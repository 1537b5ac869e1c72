// Package storage handles SQLite persistence for relay API keys.
package storage

import (
	"context"
)

// Storage defines the interface for relay key persistence operations.
type Storage interface {
	CreateRelayKey(ctx context.Context, name string, key string) (*RelayKey, error)
	GetRelayKey(ctx context.Context, id int64) (*RelayKey, error)
	ListRelayKeys(ctx context.Context) ([]*RelayKey, error)
	DeleteRelayKey(ctx context.Context, id int64) error

	Close() error
}
