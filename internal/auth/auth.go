// Package auth handles inbound relay API key validation.
package auth

import (
	"context"
	"errors"

	"github.com/sabyx/saby-crm-relay/internal/storage"
)

// Errors for authentication failures.
var (
	// ErrMissingKey indicates no API key was provided.
	ErrMissingKey = errors.New("auth: missing API key")
	// ErrInvalidKey indicates the API key is not valid.
	ErrInvalidKey = errors.New("auth: invalid API key")
)

// KeyInfo contains validated key information.
type KeyInfo struct {
	KeyID   int64
	KeyName string
}

// Storage is the key lookup dependency.
type Storage interface {
	ListRelayKeys(ctx context.Context) ([]*storage.RelayKey, error)
}

// Validator checks inbound API keys against stored bcrypt hashes.
type Validator struct {
	storage Storage
}

// NewValidator creates a new Validator.
func NewValidator(s Storage) *Validator {
	return &Validator{storage: s}
}

// ValidateKey checks if the API key is valid.
// Returns KeyInfo if valid, ErrMissingKey or ErrInvalidKey otherwise.
func (v *Validator) ValidateKey(ctx context.Context, apiKey string) (*KeyInfo, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}

	keys, err := v.storage.ListRelayKeys(ctx)
	if err != nil {
		return nil, err
	}

	// Must iterate all keys - bcrypt hashes are not comparable directly
	for _, key := range keys {
		if storage.VerifyKey(apiKey, key.KeyHash) == nil {
			return &KeyInfo{
				KeyID:   key.ID,
				KeyName: key.Name,
			}, nil
		}
	}

	return nil, ErrInvalidKey
}
