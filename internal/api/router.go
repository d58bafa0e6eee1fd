package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/api/handlers"
	"github.com/hugh/asset-shipper/internal/api/middleware"
	"github.com/hugh/asset-shipper/internal/auth"
	"github.com/hugh/asset-shipper/internal/repository"
	"github.com/hugh/asset-shipper/internal/tasks"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Inspector      handlers.QueueLister
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	Repository     repository.Repository
	Enqueuer       tasks.Enqueuer
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Inspector)
	jobHandler := handlers.NewJobHandler(cfg.DB, cfg.Enqueuer, cfg.Logger)
	documentHandler := handlers.NewDocumentHandler(cfg.Repository, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTService))

		// Limits are keyed by tenant, so they run after Auth.
		if cfg.RateLimitReqs > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitReqs, time.Duration(cfg.RateLimitSecs)*time.Second))
		}

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.List)
			r.Get("/{id}", jobHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator))
				r.Post("/reconcile", jobHandler.CreateReconcile)
				r.Post("/asset-state", jobHandler.CreateAssetState)
			})
		})

		r.Route("/documents/{index}", func(r chi.Router) {
			r.Get("/_states", documentHandler.States)
			r.Get("/{docId}", documentHandler.Get)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	})

	return &Router{r}
}
