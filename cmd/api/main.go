package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"stigwatch/internal/api"
	"stigwatch/internal/api/handlers"
	apimiddleware "stigwatch/internal/api/middleware"
	"stigwatch/internal/catalog"
	"stigwatch/internal/config"
	"stigwatch/internal/domain/services"
	grpchealth "stigwatch/internal/grpc/health"
	"stigwatch/internal/infrastructure/cache"
	"stigwatch/internal/infrastructure/database"
	"stigwatch/internal/infrastructure/database/repository"
	"stigwatch/internal/streaming"
	"stigwatch/internal/templates"
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
	})

	log.WithFields(map[string]any{
		"app":     cfg.App.Name,
		"env":     cfg.App.Environment,
		"version": cfg.App.Version,
	}).Info().Msg("starting stigwatch")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without report cache")
		} else {
			defer redisCache.Close()
		}
	}

	// Initialize streaming infrastructure
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local events only")
		} else {
			defer natsPublisher.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("connected to NATS")
		}
	}

	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	log.Info().Bool("nats_enabled", natsPublisher != nil).Msg("event bus initialized")

	wsHub := streaming.NewWebSocketHub(log)
	go wsHub.Run(ctx)

	// Load the control catalog
	snapshot, err := catalog.Load(cfg.Compliance.CatalogFile, cfg.Compliance.ControlsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load control catalog")
	}
	log.Info().
		Int("ccis", snapshot.CCIs()).
		Int("controls", len(snapshot.Controls)).
		Msg("control catalog loaded")

	// Repositories
	systemRepo := repository.NewSystemRepository(db.Pool())
	checklistRepo := repository.NewChecklistRepository(db.Pool())
	templateRepo := repository.NewTemplateRepository(db.Pool())

	templateStore, err := initTemplates(ctx, cfg.Templates, templateRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load checklist templates")
	}

	// Initialize services
	svcCfg := services.ChecklistServiceConfig{
		Templates: templateStore,
		Publisher: streaming.NewEventBusPublisher(eventBus, wsHub),
		CacheTTL:  cfg.Compliance.ReportCacheTTL,
	}
	checks := map[string]handlers.Pinger{"postgres": db}
	var limiter apimiddleware.RateLimitStore
	if redisCache != nil {
		svcCfg.Cache = redisCache
		checks["redis"] = redisCache
		limiter = redisCache
	}
	if natsPublisher != nil {
		checks["nats"] = handlers.PingFunc(func(context.Context) error {
			if !natsPublisher.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		})
	}

	compliance := services.NewComplianceService(cfg.Compliance.WorkerPoolSize, log)
	checklistService := services.NewChecklistService(systemRepo, checklistRepo, compliance, snapshot, svcCfg, log)

	// Initialize handlers
	h := handlers.NewHandlers(handlers.Dependencies{
		Config:   *cfg,
		Service:  checklistService,
		Checks:   checks,
		WSHub:    wsHub,
		EventBus: eventBus,
		Logger:   log,
	})

	// Create router
	router := api.NewRouter(*cfg, h, limiter, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		// REST routes carry their own timeout; event streams have none
		WriteTimeout: 0,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	grpcChecks := make(map[string]grpchealth.Checker, len(checks))
	for name, check := range checks {
		grpcChecks[name] = check
	}
	reporter := grpchealth.RegisterHealthServer(grpcServer, grpcChecks, 0, log)
	go reporter.Run(ctx)

	go func() {
		log.Info().
			Str("addr", grpcListener.Addr().String()).
			Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}

// initTemplates loads the template directory. With SyncOnStart the templates
// are copied into the database and looked up there.
func initTemplates(ctx context.Context, cfg config.TemplatesConfig, repo *repository.TemplateRepository, log *logger.Logger) (services.TemplateStore, error) {
	if cfg.Dir == "" {
		log.Info().Msg("no template directory configured, using stored templates")
		return repo, nil
	}

	store := templates.NewStore(cfg.Dir, log)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	if !cfg.SyncOnStart {
		return store, nil
	}

	for _, t := range store.Templates() {
		if err := repo.Upsert(ctx, t); err != nil {
			return nil, err
		}
	}
	log.Info().Int("templates", len(store.Templates())).Msg("templates synced to database")
	return repo, nil
}
