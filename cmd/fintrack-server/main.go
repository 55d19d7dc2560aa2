package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/middleware/ratelimit"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("Invalid configuration", "error", err)
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

	var (
		publisher  amqp.Publisher
		subscriber *amqp.Client
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client

		subscriber, err = amqp.NewSubscriber(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to subscribe to record-changed events", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()
		logger.Info("Record-changed events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Warn("AMQP_URL not set, record-changed events disabled; lists may lag writes from other processes by up to LIST_CACHE_TTL",
			"list_cache_ttl", cfg.ListCacheTTL)
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:          cfg.Addr(),
		APIToken:      cfg.APIToken,
		ListCacheSize: cfg.ListCacheSize,
		ListCacheTTL:  cfg.ListCacheTTL,
		RateLimit: ratelimit.Config{
			RequestsPerWindow: cfg.RateLimit,
			Window:            time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		TrustedProxies: cfg.TrustedProxies,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
	}, repo, publisher, logger)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if subscriber != nil {
		g.Go(func() error {
			err := subscriber.ConsumeRecordChanged(gctx, srv.HandleRecordChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer shutdownCancel()
		logger.Info("Shutting down server", "grace", cfg.ShutdownGrace)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
