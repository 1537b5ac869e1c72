package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sabyx/saby-crm-relay/internal/metrics"
)

type contextKey string

const keyInfoKey contextKey = "key-info"

// Middleware returns middleware that requires a valid X-API-Key header.
// Validated key info is stored in the request context for handlers.
func Middleware(v *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := v.ValidateKey(r.Context(), r.Header.Get("X-API-Key"))
			if err != nil {
				reason := "invalid_key"
				if errors.Is(err, ErrMissingKey) {
					reason = "missing_key"
				} else if !errors.Is(err, ErrInvalidKey) {
					// Storage failure, not a bad credential.
					logger.Error("api key validation failed", "error", err)
					writeAuthError(w, http.StatusInternalServerError, "internal error")
					return
				}

				metrics.RecordAuthFailure(reason)
				logger.Warn("rejected request", "reason", reason, "path", r.URL.Path)
				writeAuthError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}

			ctx := context.WithValue(r.Context(), keyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the validated key info from the context, or nil.
func GetKeyInfo(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(keyInfoKey).(*KeyInfo)
	return info
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
