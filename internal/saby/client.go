package saby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sabyx/saby-crm-relay/internal/metrics"
	"github.com/sabyx/saby-crm-relay/internal/record"
)

const (
	// DefaultServiceURL is the production Saby CRM service endpoint.
	DefaultServiceURL = "https://online.sbis.ru/service/"

	// protocolVersion is the CRM serialization protocol carried in every
	// call envelope.
	protocolVersion = 6
)

// CRM method names used by the relay.
const (
	methodGetTheme   = "CRMLead.getCRMThemeByName"
	methodInsertLead = "CRMLead.insertRecord"
	methodLeadStatus = "CRMLead.getStatus"
	methodFindClient = "Контрагент.ПоИННКППКФ"
)

// Client talks to the Saby CRM service endpoint, transparently supplying a
// valid access token for every call.
type Client struct {
	serviceURL string
	httpClient *http.Client
	tokens     *TokenManager
	logger     *slog.Logger
	decoder    record.Decoder
	callID     atomic.Int64

	// collected for the TokenManager built in NewClient
	authURL     string
	ttl         time.Duration
	authTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithServiceURL sets a custom service endpoint (useful with mocksaby).
func WithServiceURL(url string) Option {
	return func(c *Client) {
		c.serviceURL = url
	}
}

// WithAuthServiceURL sets a custom authorization endpoint.
func WithAuthServiceURL(url string) Option {
	return func(c *Client) {
		c.authURL = url
	}
}

// WithHTTPClient sets a custom HTTP client, shared with the token manager.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for client and token lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTTL overrides the heuristic token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// NewClient creates a Saby CRM client with its own token manager.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		serviceURL:  DefaultServiceURL,
		authURL:     DefaultAuthURL,
		httpClient:  http.DefaultClient,
		logger:      slog.Default(),
		ttl:         DefaultTokenTTL,
		authTimeout: defaultAuthTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenManager(creds,
		WithAuthURL(c.authURL),
		WithTokenHTTPClient(c.httpClient),
		WithTokenTTL(c.ttl),
		WithTokenLogger(c.logger),
		WithAuthTimeout(c.authTimeout),
	)
	c.decoder = record.Decoder{Logger: c.logger}
	return c
}

// Tokens exposes the token manager for diagnostics and shutdown logout.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Call performs one CRM method call and returns the raw JSON-RPC result. A
// 401-style rejection invalidates the cached token and retries the call
// exactly once with a fresh one.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	result, err := c.call(ctx, method, params)
	if err == nil {
		return result, nil
	}
	if !isAuthRejection(err) {
		return nil, err
	}

	c.tokens.Invalidate()
	c.logger.Warn("saby token rejected mid-session, retrying once", "method", method)
	return c.call(ctx, method, params)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	envelope := rpcRequest{
		JSONRPC:  "2.0",
		Method:   method,
		Params:   params,
		Protocol: protocolVersion,
		ID:       c.callID.Add(1),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("saby: failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-SBISAccessToken", tok.Value)
	req.Header.Set("Content-Type", "application/json-rpc; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(method, "transport_error")
		return nil, wrapTransport(method, err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordUpstreamRequest(method, "transport_error")
		return nil, wrapTransport(method, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.RecordUpstreamRequest(method, "unauthorized")
		return nil, fmt.Errorf("%w (method %s)", ErrTokenExpired, method)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordUpstreamRequest(method, "http_error")
		return nil, parseHTTPError(resp.StatusCode, respBody)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.RecordUpstreamRequest(method, "decode_error")
		return nil, fmt.Errorf("saby: failed to decode %s response: %w", method, err)
	}
	if parsed.Error != nil {
		metrics.RecordUpstreamRequest(method, "crm_error")
		return nil, &APIError{
			Code:       parsed.Error.Code,
			HTTPStatus: resp.StatusCode,
			Message:    parsed.Error.Message,
			Details:    string(parsed.Error.Data),
		}
	}

	metrics.RecordUpstreamRequest(method, "success")
	return parsed.Result, nil
}

// isAuthRejection reports whether the error means the token was rejected
// mid-session, which warrants the single invalidate-and-retry.
func isAuthRejection(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// parseHTTPError maps a non-200 service response onto an APIError, keeping
// the JSON-RPC error object when the body carries one.
func parseHTTPError(statusCode int, body []byte) error {
	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		return &APIError{
			Code:       parsed.Error.Code,
			HTTPStatus: statusCode,
			Message:    parsed.Error.Message,
			Details:    string(parsed.Error.Data),
		}
	}
	return &APIError{HTTPStatus: statusCode, Message: truncate(string(body), 256)}
}
