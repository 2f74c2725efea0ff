package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stigwatch/internal/catalog"
	"stigwatch/internal/config"
	"stigwatch/internal/domain/services"
	"stigwatch/internal/infrastructure/cache"
	"stigwatch/internal/infrastructure/database"
	"stigwatch/internal/infrastructure/database/repository"
	"stigwatch/internal/streaming"
	"stigwatch/internal/worker"
	"stigwatch/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	}).WithComponent("report-worker")

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting stigwatch report worker")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	// Redis holds the reports being warmed and the per-system locks
	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	natsPublisher, err := streaming.NewNATSPublisher(ctx, cfg.NATS, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsPublisher.Close()

	snapshot, err := catalog.Load(cfg.Compliance.CatalogFile, cfg.Compliance.ControlsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load control catalog")
	}

	checklistService := services.NewChecklistService(
		repository.NewSystemRepository(db.Pool()),
		repository.NewChecklistRepository(db.Pool()),
		services.NewComplianceService(cfg.Compliance.WorkerPoolSize, log),
		snapshot,
		services.ChecklistServiceConfig{
			Cache:    redisCache,
			CacheTTL: cfg.Compliance.ReportCacheTTL,
		},
		log,
	)

	events, err := natsPublisher.Subscribe(ctx, &streaming.Subscription{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to checklist events")
	}

	warmer := worker.NewWarmer(checklistService, redisCache, cfg.Worker, log)

	// Handle shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := warmer.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("worker stopped with error")
		}
	}()

	// Wait for shutdown signal or the event stream ending
	select {
	case <-quit:
	case <-done:
		log.Warn().Msg("event stream closed")
	}
	log.Info().Msg("shutting down report worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn().Msg("worker did not stop in time")
	}
	log.Info().Msg("shutdown complete")
}
