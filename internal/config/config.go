// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel           string        // debug, info, warn, error
	ListenAddr         string        // Server listen address (e.g., ":8080")
	MetricsListenAddr  string        // Metrics listener address (e.g., "localhost:9090")
	DatabasePath       string        // SQLite database path for relay API keys (empty = auth disabled)
	SabyAppClientID    string        // Required: Saby application client ID
	SabyAppSecret      string        // Required: Saby application secret
	SabySecretKey      string        // Required: Saby service secret key
	SabyAuthURL        string        // Optional: override for the Saby OAuth service endpoint
	SabyAPIURL         string        // Optional: override for the Saby RPC service endpoint
	SabyRequestTimeout time.Duration // Upstream request timeout
	SabyTokenTTL       time.Duration // Heuristic lifetime assumed for service tokens
}

// Load parses configuration from environment variables.
// Only the Saby credentials are required; everything else has defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          os.Getenv("LOG_LEVEL"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		MetricsListenAddr: os.Getenv("METRICS_LISTEN_ADDR"),
		DatabasePath:      os.Getenv("DATABASE_PATH"),
		SabyAppClientID:   os.Getenv("SABY_APP_CLIENT_ID"),
		SabyAppSecret:     os.Getenv("SABY_APP_SECRET"),
		SabySecretKey:     os.Getenv("SABY_SECRET_KEY"),
		SabyAuthURL:       os.Getenv("SABY_AUTH_URL"),
		SabyAPIURL:        os.Getenv("SABY_API_URL"),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetricsListenAddr == "" {
		cfg.MetricsListenAddr = "localhost:9090"
	}

	var err error
	cfg.SabyRequestTimeout, err = durationEnv("SABY_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.SabyTokenTTL, err = durationEnv("SABY_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.SabyAppClientID == "" {
		return fmt.Errorf("SABY_APP_CLIENT_ID environment variable is required")
	}
	if c.SabyAppSecret == "" {
		return fmt.Errorf("SABY_APP_SECRET environment variable is required")
	}
	if c.SabySecretKey == "" {
		return fmt.Errorf("SABY_SECRET_KEY environment variable is required")
	}
	if c.SabyRequestTimeout <= 0 {
		return fmt.Errorf("SABY_REQUEST_TIMEOUT must be positive")
	}
	if c.SabyTokenTTL <= 0 {
		return fmt.Errorf("SABY_TOKEN_TTL must be positive")
	}
	return nil
}

// AuthEnabled reports whether inbound API key authentication is configured.
func (c *Config) AuthEnabled() bool {
	return c.DatabasePath != ""
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like \"30s\": %w", name, err)
	}
	return d, nil
}
