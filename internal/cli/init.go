// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/gastos, cmd/events-worker and cmd/oauth-init.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gastos/internal/backend"
	"gastos/internal/config"
	"gastos/internal/log"
	"gastos/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// NewLogger builds the process logger at cfg's level and installs it as the
// slog default.
func NewLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	if component != "" {
		lc.Component = component
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads the environment and the configuration and sets up logging.
// It exits the process when the configuration is invalid.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := NewLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the storage, blob and event collaborators selected by cfg.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return be
}

// CloseBackend runs the backend cleanup and logs a failure.
func CloseBackend(be *backend.BackendResult, logger *log.Logger) {
	if err := be.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", log.FieldError, err)
	}
}

// NewReconciler builds the blob and orphan sweep over be.
func NewReconciler(cfg *config.Config, be *backend.BackendResult, logger *log.Logger) *services.Reconciler {
	return services.NewReconciler(be.Store, be.Blobs, services.ReconcilerConfig{
		Interval:  cfg.ReconcileInterval,
		BatchSize: cfg.ReconcileBatchSize,
	}, logger)
}

// SweepsInProcess reports whether the server runs the reconciler itself. Without
// a broker no events worker runs, and a memory store is private to its process.
func SweepsInProcess(cfg *config.Config, be *backend.BackendResult) bool {
	return be.AMQP == nil || cfg.DataBackend == string(backend.MemoryBackend)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
