package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// CreateRelayKey creates a new relay API key with a bcrypt hash of key.
// Returns ErrDuplicate if a key with this hash already exists.
func (s *SQLiteStorage) CreateRelayKey(ctx context.Context, name string, key string) (*RelayKey, error) {
	keyHash, err := HashKey(key)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO relay_keys (key_hash, name) VALUES (?, ?)",
		keyHash, name)
	if err != nil {
		// UNIQUE constraint: extended code 2067, base code 19
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			if sqliteErr.Code() == 2067 || (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT {
				return nil, ErrDuplicate
			}
		}
		return nil, fmt.Errorf("failed to create relay key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	return &RelayKey{
		ID:      id,
		KeyHash: keyHash,
		Name:    name,
	}, nil
}

// GetRelayKey retrieves a relay key by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) GetRelayKey(ctx context.Context, id int64) (*RelayKey, error) {
	var k RelayKey

	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, created_at FROM relay_keys WHERE id = ?",
		id).
		Scan(&k.ID, &k.KeyHash, &k.Name, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get relay key: %w", err)
	}

	return &k, nil
}

// ListRelayKeys returns all relay keys.
// Returns empty slice if no keys exist.
func (s *SQLiteStorage) ListRelayKeys(ctx context.Context) ([]*RelayKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, key_hash, name, created_at FROM relay_keys ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query relay keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var keys []*RelayKey
	for rows.Next() {
		var k RelayKey
		if err := rows.Scan(&k.ID, &k.KeyHash, &k.Name, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relay key row: %w", err)
		}
		keys = append(keys, &k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relay keys: %w", err)
	}

	if keys == nil {
		keys = make([]*RelayKey, 0)
	}

	return keys, nil
}

// DeleteRelayKey deletes a relay key by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) DeleteRelayKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM relay_keys WHERE id = ?",
		id)
	if err != nil {
		return fmt.Errorf("failed to delete relay key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
