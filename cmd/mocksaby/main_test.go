package main

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sabyx/saby-crm-relay/internal/testutil/mocksaby"
)

func TestGetPort(t *testing.T) {
	tests := []struct {
		name string
		port string
		want string
	}{
		{"default when unset", "", "8081"},
		{"custom port", "9000", "9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORT", tt.port)
			if got := getPort(); got != tt.want {
				t.Errorf("getPort() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunHealthCheck(t *testing.T) {
	server := mocksaby.New()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	t.Setenv("PORT", u.Port())

	if code := runHealthCheck(); code != 0 {
		t.Errorf("runHealthCheck() = %d, want 0 against a live server", code)
	}
}

func TestRunHealthCheckUnreachable(t *testing.T) {
	// Port 1 is privileged and unbound in the test environment.
	t.Setenv("PORT", "1")

	if code := runHealthCheck(); code != 1 {
		t.Errorf("runHealthCheck() = %d, want 1 when the server is down", code)
	}
}
