package storage

import (
	"context"
	"errors"
	"testing"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateRelayKey(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	key, err := s.CreateRelayKey(ctx, "ci-pipeline", "my-secret-key")
	if err != nil {
		t.Fatalf("CreateRelayKey failed: %v", err)
	}

	if key.ID <= 0 {
		t.Errorf("expected positive ID, got %d", key.ID)
	}
	if key.Name != "ci-pipeline" {
		t.Errorf("Name = %q, want %q", key.Name, "ci-pipeline")
	}
	if key.KeyHash == "my-secret-key" {
		t.Error("KeyHash stores the plaintext key, want bcrypt hash")
	}
	if err := VerifyKey("my-secret-key", key.KeyHash); err != nil {
		t.Errorf("VerifyKey failed against stored hash: %v", err)
	}
}

func TestCreateRelayKeyDuplicateHash(t *testing.T) {
	// Normal CreateRelayKey calls cannot produce duplicate hashes because
	// bcrypt salts are random, so insert the duplicate hash directly.
	s := newTestStorage(t)
	ctx := context.Background()

	first, err := s.CreateRelayKey(ctx, "key-1", "secret-1")
	if err != nil {
		t.Fatalf("CreateRelayKey failed: %v", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO relay_keys (key_hash, name) VALUES (?, ?)",
		first.KeyHash, "key-2")
	if err == nil {
		t.Fatal("duplicate hash insert succeeded, want UNIQUE constraint error")
	}
}

func TestGetRelayKey(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateRelayKey(ctx, "webhook", "secret")
	if err != nil {
		t.Fatalf("CreateRelayKey failed: %v", err)
	}

	got, err := s.GetRelayKey(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRelayKey failed: %v", err)
	}
	if got.ID != created.ID || got.Name != "webhook" {
		t.Errorf("GetRelayKey = %+v, want ID=%d Name=webhook", got, created.ID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want database timestamp")
	}

	_, err = s.GetRelayKey(ctx, 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRelayKey(9999) error = %v, want ErrNotFound", err)
	}
}

func TestListRelayKeys(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	keys, err := s.ListRelayKeys(ctx)
	if err != nil {
		t.Fatalf("ListRelayKeys failed: %v", err)
	}
	if keys == nil {
		t.Fatal("ListRelayKeys returned nil, want empty slice")
	}
	if len(keys) != 0 {
		t.Fatalf("expected 0 keys, got %d", len(keys))
	}

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.CreateRelayKey(ctx, name, "secret-"+name); err != nil {
			t.Fatalf("CreateRelayKey(%q) failed: %v", name, err)
		}
	}

	keys, err = s.ListRelayKeys(ctx)
	if err != nil {
		t.Fatalf("ListRelayKeys failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("expected 3 keys, got %d", len(keys))
	}
}

func TestDeleteRelayKey(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateRelayKey(ctx, "doomed", "secret")
	if err != nil {
		t.Fatalf("CreateRelayKey failed: %v", err)
	}

	if err := s.DeleteRelayKey(ctx, created.ID); err != nil {
		t.Fatalf("DeleteRelayKey failed: %v", err)
	}

	_, err = s.GetRelayKey(ctx, created.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRelayKey after delete error = %v, want ErrNotFound", err)
	}

	err = s.DeleteRelayKey(ctx, created.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRelayKey error = %v, want ErrNotFound", err)
	}
}

func TestHashAndVerifyKey(t *testing.T) {
	hash, err := HashKey("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	if err := VerifyKey("correct horse battery staple", hash); err != nil {
		t.Errorf("VerifyKey with right key failed: %v", err)
	}
	if err := VerifyKey("wrong key", hash); err == nil {
		t.Error("VerifyKey with wrong key succeeded, want error")
	}
}
