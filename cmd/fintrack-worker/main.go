package main

import (
	"context"
	"errors"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting fintrack-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		logger.Error("Failed to create data directory", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	repo, err := cli.OpenStorage(logger, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open document store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	mirror, err := backend.NewMirror(ctx, backend.Config{
		Type:   backend.Type(cfg.MirrorBackend),
		Sheets: cfg.Sheets,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize sheet mirror", "error", err, "backend", cfg.MirrorBackend)
		os.Exit(1)
	}
	defer mirror.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(repo, mirror.Mirror, logger)

	if cfg.ResyncOnStart {
		resync(ctx, repo, mirrorWorker, logger)
	}

	scheduler := services.NewRecurringScheduler(
		services.NewRecurringProcessor(repo, amqpClient, logger),
		services.RecurringSchedulerConfig{Interval: cfg.RecurringInterval},
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeRecordChanged(gctx, mirrorWorker.HandleRecordChanged)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer stopCancel()
		return scheduler.Stop(stopCtx)
	})

	logger.Info("Worker running", "mirror", cfg.MirrorBackend, "recurring_interval", cfg.RecurringInterval)
	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

// resync rebuilds the mirror for every user that owns expenses. Events lost
// while the worker was down are covered this way.
func resync(ctx context.Context, repo interface {
	Users(ctx context.Context, entity core.Entity) ([]string, error)
}, w *worker.MirrorWorker, logger *log.Logger) {
	users, err := repo.Users(ctx, core.EntityExpense)
	if err != nil {
		logger.Error("Failed to list users for resync", "error", err)
		return
	}
	for _, userID := range users {
		n, err := w.ResyncUser(ctx, userID)
		if err != nil {
			logger.Error("Resync failed", log.FieldUserID, userID, "error", err)
			continue
		}
		logger.Info("Resync completed", log.FieldUserID, userID, "mirrored", n)
	}
}
