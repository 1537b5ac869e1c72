package saby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sabyx/saby-crm-relay/internal/metrics"
)

const (
	// DefaultAuthURL is the production Saby service-authorization endpoint.
	DefaultAuthURL = "https://online.sbis.ru/oauth/service/"

	// DefaultTokenTTL is the conservative token lifetime assumed when the
	// CRM does not communicate an explicit expiry.
	DefaultTokenTTL = 24 * time.Hour

	// defaultAuthTimeout bounds the shared in-flight authorization call so
	// it cannot hang forever once detached from the first caller's context.
	defaultAuthTimeout = 30 * time.Second

	userAgent = "saby-crm-relay/1.0"
)

// State is the token lifecycle state, retained for diagnostics.
type State int

// Lifecycle states.
const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateValid
	StateExpired
	StateRevoked
)

// String returns the state name for logs and the health endpoint.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// TokenManager owns the service access token: acquisition, caching, expiry
// detection, renewal and revocation. Concurrent callers needing a fresh token
// share a single in-flight authorization call.
type TokenManager struct {
	creds       Credentials
	authURL     string
	httpClient  *http.Client
	ttl         time.Duration
	authTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.Mutex
	token *Token
	state State

	group singleflight.Group
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithAuthURL sets the authorization endpoint (useful with mocksaby).
func WithAuthURL(url string) TokenOption {
	return func(m *TokenManager) {
		m.authURL = url
	}
}

// WithTokenHTTPClient sets the HTTP client used for authorization calls.
func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(m *TokenManager) {
		m.httpClient = client
	}
}

// WithTokenTTL overrides the heuristic token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		m.ttl = ttl
	}
}

// WithTokenLogger sets the logger for lifecycle transitions.
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(m *TokenManager) {
		m.logger = logger
	}
}

// WithAuthTimeout bounds the shared authorization call.
func WithAuthTimeout(d time.Duration) TokenOption {
	return func(m *TokenManager) {
		m.authTimeout = d
	}
}

// withClock replaces the time source in tests.
func withClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a TokenManager in the Unauthenticated state.
func NewTokenManager(creds Credentials, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		creds:       creds,
		authURL:     DefaultAuthURL,
		httpClient:  http.DefaultClient,
		ttl:         DefaultTokenTTL,
		authTimeout: defaultAuthTimeout,
		logger:      slog.Default(),
		now:         time.Now,
		state:       StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *TokenManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the cached token if it is still valid, otherwise performs at
// most one concurrent authorization call; all callers arriving while that
// call is in flight receive its result. Cancelling ctx abandons only this
// caller's wait, never the shared call.
func (m *TokenManager) Token(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	if m.state == StateValid && m.token != nil {
		if !m.token.Expired(m.now()) {
			tok := m.token
			m.mu.Unlock()
			return tok, nil
		}
		m.state = StateExpired
		m.logger.Info("saby token expired", "obtained_at", m.token.ObtainedAt)
	}
	m.mu.Unlock()

	ch := m.group.DoChan("authorize", func() (any, error) {
		// Detach from the triggering caller: other waiters still need the
		// result if that caller gives up.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.authTimeout)
		defer cancel()
		return m.authenticate(actx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate forces the Expired state regardless of TTL, so the next Token
// call performs a fresh authorization. Used when an API call reports an auth
// failure mid-session.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && m.state == StateValid {
		m.state = StateExpired
		m.logger.Info("saby token invalidated")
	}
}

// Logout revokes the cached token. The CRM is notified best-effort: the local
// token is cleared even when the logout call fails, and the error is returned
// only so the caller can log it.
func (m *TokenManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	tok := m.token
	m.token = nil
	m.state = StateRevoked
	m.mu.Unlock()

	if tok == nil {
		return nil
	}

	body, err := json.Marshal(logoutRequest{Event: "exit", Token: tok.Value})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return wrapTransport("logout", err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()
	//nolint:errcheck
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("saby: logout failed (status %d)", resp.StatusCode)
	}
	m.logger.Info("saby token revoked")
	return nil
}

// authenticate performs the service authorization call and caches the
// resulting token. No automatic retries: retry policy belongs to the caller.
func (m *TokenManager) authenticate(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	// A caller can land here just after another round completed; honor the
	// fresh token instead of burning a redundant authorization call.
	if m.state == StateValid && m.token != nil && !m.token.Expired(m.now()) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	tok, err := m.requestToken(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.token = nil
		m.state = StateUnauthenticated
		metrics.RecordTokenRefresh("failure")
		return nil, err
	}
	m.token = tok
	m.state = StateValid
	metrics.RecordTokenRefresh("success")
	m.logger.Info("saby token obtained", "session_id", tok.SessionID, "ttl", tok.TTL)
	return tok, nil
}

func (m *TokenManager) requestToken(ctx context.Context) (*Token, error) {
	body, err := json.Marshal(authRequest{
		AppClientID: m.creds.AppClientID,
		AppSecret:   m.creds.AppSecret,
		SecretKey:   m.creds.SecretKey,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("authorize", err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport("authorize", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 256)}
	}

	var parsed authResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "malformed authorization response: " + err.Error()}
	}
	if parsed.Token == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "authorization response missing token"}
	}

	return &Token{
		Value:      parsed.Token,
		SessionID:  parsed.SID,
		ObtainedAt: m.now(),
		TTL:        m.ttl,
	}, nil
}

// truncate bounds upstream body snippets embedded in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
