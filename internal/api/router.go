package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"stigwatch/internal/api/handlers"
	apimiddleware "stigwatch/internal/api/middleware"
	"stigwatch/internal/config"
	"stigwatch/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitStore
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil, which turns
// rate limiting off.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.RateLimitStore, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Location", "Content-Disposition", "X-RateLimit-Remaining"},
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled && r.limiter != nil {
		router.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
	}

	// Health check
	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	timeout := r.config.Server.WriteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router.Route("/api/v1", func(api chi.Router) {
		// Long-lived streams stay outside the request timeout
		api.Get("/events", r.handlers.Streaming.Events)
		api.Get("/events/ws", r.handlers.Streaming.HandleWebSocket)

		api.Group(func(rest chi.Router) {
			rest.Use(middleware.Timeout(timeout))

			rest.Get("/streaming/stats", r.handlers.Streaming.GetStats)

			// Systems and their checklists
			rest.Route("/systems", func(systems chi.Router) {
				systems.Post("/", r.handlers.Systems.Create)
				systems.Get("/", r.handlers.Systems.List)

				systems.Route("/{id}", func(system chi.Router) {
					system.Get("/", r.handlers.Systems.Get)
					system.Delete("/", r.handlers.Systems.Delete)

					system.Post("/checklists", r.handlers.Checklists.Upload)
					system.Get("/checklists", r.handlers.Checklists.ListBySystem)

					system.Post("/scans", r.handlers.Scans.Import)

					system.Get("/compliance", r.handlers.Compliance.Get)
				})
			})

			// Stored checklist documents
			rest.Route("/checklists/{id}", func(checklist chi.Router) {
				checklist.Get("/", r.handlers.Checklists.Get)
				checklist.Get("/raw", r.handlers.Checklists.Raw)
				checklist.Put("/", r.handlers.Checklists.Update)
				checklist.Delete("/", r.handlers.Checklists.Delete)
			})

			// Stateless transforms
			rest.Route("/tools", func(tools chi.Router) {
				tools.Post("/canonicalize", r.handlers.Tools.Canonicalize)
				tools.Post("/parse", r.handlers.Tools.ParseChecklist)
				tools.Post("/parse-scan", r.handlers.Tools.ParseScan)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	return router
}
