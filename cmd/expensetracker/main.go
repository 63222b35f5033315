package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/auth"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	apphttp "expensetracker/internal/http"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/session"
)

const cacheSweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, logger, err := cli.LoadConfig(log.ComponentApp)
	if err != nil {
		return err
	}

	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	result, err := cli.OpenBackend(ctx, logger, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	overviews := cache.NewLRUCache[core.Overview](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(overviews)

	opts := []ledger.Option{ledger.WithOverviewCache(overviews), ledger.WithLogger(logger)}
	if result.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(result.Publisher))
	}
	svc := ledger.NewService(result.Store, opts...)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Dependencies{
		Ledger:        svc,
		Accounts:      session.NewAuthenticator(result.Store, svc, logger),
		Tokens:        auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Ready:         result.Ready,
		OverviewCache: overviews,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	caches.StartCleanup(gctx, cacheSweepInterval)
	defer caches.Stop()

	g.Go(func() error {
		logger.Info("Starting expensetracker server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"events_enabled", result.Publisher != nil,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
			return err
		}
		logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
		return nil
	})

	return g.Wait()
}
