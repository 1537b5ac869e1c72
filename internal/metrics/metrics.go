// Package metrics provides Prometheus metrics collection for the relay.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global metric vectors, stored in atomics so the record helpers are cheap
// no-ops before Init runs (unit tests, mocksaby).
var (
	requestsTotal       atomic.Pointer[prometheus.CounterVec]
	requestDuration     atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal   atomic.Pointer[prometheus.CounterVec]
	upstreamTotal       atomic.Pointer[prometheus.CounterVec]
	tokenRefreshesTotal atomic.Pointer[prometheus.CounterVec]
)

// Init registers all relay metrics with the provided registry. Call once at
// startup.
func Init(reg prometheus.Registerer) error {
	requestsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saby",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the relay",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsVec); err != nil {
		return fmt.Errorf("failed to register requests_total: %w", err)
	}

	durationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saby",
			Subsystem: "relay",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(durationVec); err != nil {
		return fmt.Errorf("failed to register request_duration_seconds: %w", err)
	}

	authFailuresVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saby",
			Subsystem: "relay",
			Name:      "auth_failures_total",
			Help:      "Total number of inbound authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresVec); err != nil {
		return fmt.Errorf("failed to register auth_failures_total: %w", err)
	}

	upstreamVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saby",
			Subsystem: "relay",
			Name:      "upstream_requests_total",
			Help:      "Total number of CRM service calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)
	if err := reg.Register(upstreamVec); err != nil {
		return fmt.Errorf("failed to register upstream_requests_total: %w", err)
	}

	tokenRefreshVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saby",
			Subsystem: "relay",
			Name:      "token_refreshes_total",
			Help:      "Total number of service authorization calls by outcome",
		},
		[]string{"outcome"},
	)
	if err := reg.Register(tokenRefreshVec); err != nil {
		return fmt.Errorf("failed to register token_refreshes_total: %w", err)
	}

	requestsTotal.Store(requestsVec)
	requestDuration.Store(durationVec)
	authFailuresTotal.Store(authFailuresVec)
	upstreamTotal.Store(upstreamVec)
	tokenRefreshesTotal.Store(tokenRefreshVec)

	return nil
}

// RecordRequest increments the request counter. The path should be
// normalized ("/deals/:id", not "/deals/123").
func RecordRequest(method, path, status string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, status).Inc()
	}
}

// RecordRequestDuration records request latency in seconds.
func RecordRequestDuration(method, path, status string, seconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, status).Observe(seconds)
	}
}

// RecordAuthFailure increments the inbound auth failure counter.
// Common reasons: "missing_key", "invalid_key".
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordUpstreamRequest increments the CRM call counter.
// Outcomes: "success", "crm_error", "http_error", "unauthorized",
// "transport_error", "decode_error".
func RecordUpstreamRequest(method, outcome string) {
	if counter := upstreamTotal.Load(); counter != nil {
		counter.WithLabelValues(method, outcome).Inc()
	}
}

// RecordTokenRefresh increments the authorization counter with outcome
// "success" or "failure".
func RecordTokenRefresh(outcome string) {
	if counter := tokenRefreshesTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// Handler returns the Prometheus text-format handler for the /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
