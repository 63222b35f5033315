// Package cli holds the start-up steps shared by cmd/expensetracker and
// cmd/ledger-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
)

// LoadEnvFile loads .env style files for local development. Missing files
// are not an error; variables already set in the environment win.
func LoadEnvFile(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default. An unknown level falls back to info and is reported.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, levelErr := log.ParseLevel(cfg.LogLevel)

	lc := log.DefaultConfig()
	lc.Level = level
	lc.Format = cfg.LogFormat
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)

	if levelErr != nil {
		logger.Warn("Invalid LOG_LEVEL, using info", log.FieldError, levelErr)
	}
	return logger
}

// LoadConfig loads .env, reads the configuration and sets up logging. It
// returns an error when the configuration is invalid; the logger is usable
// either way.
func LoadConfig(component string) (*config.Config, *log.Logger, error) {
	envErr := LoadEnvFile()

	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if envErr != nil {
		logger.Warn("Ignoring unreadable env file", log.FieldError, envErr)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		return nil, logger, err
	}
	return cfg, logger, nil
}

// OpenBackend creates the configured storage backend. withEvents controls
// whether the AMQP publisher is attached.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config, withEvents bool) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !withEvents {
		bc.AMQPURL = ""
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, bc.Type.String(), log.FieldError, err)
		return nil, err
	}
	return result, nil
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
