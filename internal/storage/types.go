package storage

import "time"

// RelayKey represents an inbound relay API key with its bcrypt hash.
type RelayKey struct {
	ID        int64
	KeyHash   string
	Name      string
	CreatedAt time.Time
}
