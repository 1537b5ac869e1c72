// Package saby implements the Saby CRM service-authorization token lifecycle
// and the JSON-RPC style client used by the relay.
package saby

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common upstream failure cases.
var (
	// ErrAuthRejected indicates the CRM rejected the service credentials
	// during authorization.
	ErrAuthRejected = errors.New("saby: authorization rejected")
	// ErrTokenExpired indicates the CRM rejected the access token
	// mid-session (a 401-style response on an API call).
	ErrTokenExpired = errors.New("saby: access token rejected by CRM")
	// ErrTimeout indicates an upstream call exceeded its deadline.
	ErrTimeout = errors.New("saby: request timed out")
)

// AuthError is a structured authorization failure. It unwraps to
// ErrAuthRejected so callers can match with errors.Is.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("saby: authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "saby: authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return ErrAuthRejected
}

// APIError is a structured error returned by the CRM service endpoint,
// either as a JSON-RPC error object or a non-200 HTTP response.
type APIError struct {
	Code       int    // JSON-RPC error code, 0 if none
	HTTPStatus int    // HTTP status of the response
	Message    string
	Details    string // raw "data" member of the error object, if present
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("saby: CRM error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("saby: request failed (status %d): %s", e.HTTPStatus, e.Message)
}

// TransportError wraps a network-level failure talking to the CRM.
type TransportError struct {
	Op  string // "authorize", "logout", or the CRM method name
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("saby: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// wrapTransport classifies a transport failure, surfacing deadline expiry as
// ErrTimeout.
func wrapTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return &TransportError{Op: op, Err: err}
}
