package saby

import (
	"encoding/json"
	"time"
)

// Credentials is the immutable service-authorization triple registered for
// the application in the Saby developer cabinet.
type Credentials struct {
	AppClientID string
	AppSecret   string
	SecretKey   string
}

// Token is a service access token. Tokens are replaced on renewal, never
// mutated, so a *Token handed to a caller stays consistent.
type Token struct {
	Value      string
	SessionID  string
	ObtainedAt time.Time
	// TTL is a conservative heuristic: the CRM does not communicate an
	// explicit expiry, so eager invalidation on observed rejections is the
	// primary mechanism.
	TTL time.Duration
}

// ExpiresAt returns the heuristic expiry instant.
func (t *Token) ExpiresAt() time.Time {
	return t.ObtainedAt.Add(t.TTL)
}

// Expired reports whether the heuristic TTL has elapsed at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// authRequest is the service authorization body. Field names are part of the
// Saby wire contract.
type authRequest struct {
	AppClientID string `json:"app_client_id"`
	AppSecret   string `json:"app_secret"`
	SecretKey   string `json:"secret_key"`
}

type authResponse struct {
	SID   string `json:"sid"`
	Token string `json:"token"`
}

// logoutRequest is the token revocation body.
type logoutRequest struct {
	Event string `json:"event"`
	Token string `json:"token"`
}

// rpcRequest is the outer call envelope for the CRM service endpoint. Built
// per call, never persisted.
type rpcRequest struct {
	JSONRPC  string `json:"jsonrpc"`
	Method   string `json:"method"`
	Params   any    `json:"params"`
	Protocol int    `json:"protocol"`
	ID       int64  `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}
