package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/storage"
	"bilancio/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bilancio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the reconciliation worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	reconciler := worker.NewReconcileWorker(repo, cfg.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recompute every balance once on startup to repair anything that
	// drifted while the worker was down.
	if err := reconciler.RunSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.ConsumeLedgerEvents(gctx, func(msg *amqp.LedgerEventMessage) error {
			return reconciler.HandleLedgerEvent(gctx, msg)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return reconciler.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
