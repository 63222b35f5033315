package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/worker"
)

const statsInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, logger, err := cli.LoadConfig(log.ComponentWorker)
	if err != nil {
		return err
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for ledger-worker")
		return errors.New("AMQP_URL not set")
	}
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend is private to this process; balances will always be empty")
	}

	logger.Info("Starting ledger-worker", log.FieldBackend, cfg.DataBackend, log.FieldOperation, log.OpStartup)

	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	// Events are consumed here, never published.
	result, err := cli.OpenBackend(ctx, logger, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return err
	}
	defer client.Close()

	svc := ledger.NewService(result.Store, ledger.WithLogger(logger))
	audit := worker.NewAuditWorker(svc, result.Store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumeLedgerEvents(gctx, audit.HandleLedgerEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Error("Message consumption failed", log.FieldError, err)
		return err
	})
	g.Go(func() error {
		audit.ReportStats(gctx, statsInterval)
		return nil
	})

	err = g.Wait()
	s := audit.Stats()
	logger.Info("Worker shutdown complete",
		"processed", s.Processed,
		"failed", s.Failed,
		log.FieldOperation, log.OpShutdown)
	return err
}
