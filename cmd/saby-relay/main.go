// Package main provides the entry point for the Saby CRM relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sabyx/saby-crm-relay/internal/auth"
	"github.com/sabyx/saby-crm-relay/internal/config"
	"github.com/sabyx/saby-crm-relay/internal/metrics"
	"github.com/sabyx/saby-crm-relay/internal/relay"
	"github.com/sabyx/saby-crm-relay/internal/saby"
	"github.com/sabyx/saby-crm-relay/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "keygen" || os.Args[1] == "keys") {
		if err := runKeyCommand(os.Args[1:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	client := newSabyClient(cfg, logger)

	authMiddleware, closeStorage, err := setupAuth(cfg, logger)
	if err != nil {
		return err
	}
	if closeStorage != nil {
		defer closeStorage()
	}

	handler := relay.NewHandler(client, logger)
	router := relay.NewRouter(handler, authMiddleware, logger)

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("relay listening", "addr", cfg.ListenAddr, "version", relay.Version, "auth_enabled", cfg.AuthEnabled())
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	// Revoke the CRM session; the token is cleared locally even when the
	// notification fails.
	if err := client.Tokens().Logout(ctx); err != nil {
		logger.Warn("saby logout failed", "error", err)
	}

	logger.Info("relay stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newSabyClient(cfg *config.Config, logger *slog.Logger) *saby.Client {
	opts := []saby.Option{
		saby.WithLogger(logger),
		saby.WithHTTPClient(&http.Client{
			Timeout:   cfg.SabyRequestTimeout,
			Transport: &saby.LoggingTransport{Logger: logger},
		}),
		saby.WithTTL(cfg.SabyTokenTTL),
	}
	if cfg.SabyAuthURL != "" {
		opts = append(opts, saby.WithAuthServiceURL(cfg.SabyAuthURL))
	}
	if cfg.SabyAPIURL != "" {
		opts = append(opts, saby.WithServiceURL(cfg.SabyAPIURL))
	}

	return saby.NewClient(saby.Credentials{
		AppClientID: cfg.SabyAppClientID,
		AppSecret:   cfg.SabyAppSecret,
		SecretKey:   cfg.SabySecretKey,
	}, opts...)
}

// setupAuth opens the relay key store and builds the auth middleware. With no
// database configured the relay runs open, which is the mode for deployments
// that terminate auth at the ingress.
func setupAuth(cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, func(), error) {
	if !cfg.AuthEnabled() {
		logger.Warn("no DATABASE_PATH configured, inbound API key auth disabled")
		return nil, nil, nil
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	validator := auth.NewValidator(store)
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close key store", "error", err)
		}
	}
	return auth.Middleware(validator, logger), closeFn, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
