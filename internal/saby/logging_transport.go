package saby

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sabyx/saby-crm-relay/internal/logging"
)

// LoggingTransport wraps an http.RoundTripper and logs every upstream
// interaction with the CRM. Access tokens and credential fields are redacted
// before they reach the log sink.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper. Below DEBUG the transport is a
// pass-through, so requests are not buffered.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Logger == nil || !t.Logger.Enabled(req.Context(), slog.LevelDebug) {
		return t.transport().RoundTrip(req)
	}

	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		var err error
		reqBody, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		headers[k] = logging.MaskHeader(k, strings.Join(v, ", "))
	}

	t.Logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", headers,
		"body", string(logging.MaskSecrets(reqBody)),
	)

	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.Logger.Error("upstream request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.Logger.Debug("upstream response",
		"status_code", resp.StatusCode,
		"url", req.URL.String(),
		"duration_ms", duration.Milliseconds(),
		"body", string(logging.MaskSecrets(respBody)),
	)

	return resp, nil
}

func (t *LoggingTransport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}
