package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sabyx/saby-crm-relay/internal/storage"
)

type fakeStorage struct {
	keys []*storage.RelayKey
	err  error
}

func (f *fakeStorage) ListRelayKeys(ctx context.Context) ([]*storage.RelayKey, error) {
	return f.keys, f.err
}

func hashOrDie(t *testing.T, key string) string {
	t.Helper()
	hash, err := storage.HashKey(key)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	return hash
}

func TestValidateKey(t *testing.T) {
	store := &fakeStorage{
		keys: []*storage.RelayKey{
			{ID: 1, Name: "ci", KeyHash: hashOrDie(t, "ci-secret")},
			{ID: 2, Name: "webhook", KeyHash: hashOrDie(t, "webhook-secret")},
		},
	}
	v := NewValidator(store)
	ctx := context.Background()

	t.Run("valid key", func(t *testing.T) {
		info, err := v.ValidateKey(ctx, "webhook-secret")
		if err != nil {
			t.Fatalf("ValidateKey failed: %v", err)
		}
		if info.KeyID != 2 || info.KeyName != "webhook" {
			t.Errorf("KeyInfo = %+v, want ID=2 Name=webhook", info)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := v.ValidateKey(ctx, "")
		if !errors.Is(err, ErrMissingKey) {
			t.Errorf("error = %v, want ErrMissingKey", err)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := v.ValidateKey(ctx, "not-a-key")
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("storage error surfaces", func(t *testing.T) {
		broken := NewValidator(&fakeStorage{err: fmt.Errorf("disk gone")})
		_, err := broken.ValidateKey(ctx, "anything")
		if err == nil || errors.Is(err, ErrInvalidKey) {
			t.Errorf("error = %v, want storage error", err)
		}
	})
}
