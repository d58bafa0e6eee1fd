package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hugh/asset-shipper/internal/api"
	"github.com/hugh/asset-shipper/internal/api/handlers"
	"github.com/hugh/asset-shipper/internal/app"
	"github.com/hugh/asset-shipper/internal/auth"
	"github.com/hugh/asset-shipper/internal/tasks"
	"github.com/hugh/asset-shipper/pkg/config"
	"github.com/hugh/asset-shipper/pkg/queue"
	"github.com/hugh/asset-shipper/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, "server")
	slog.SetDefault(logger)

	logger.Info("starting asset-shipper server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	a, err := app.New(context.Background(), cfg, logger, app.Options{UseRedis: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var (
		enqueuer  tasks.Enqueuer
		inspector handlers.QueueLister
	)
	if a.Queue != nil {
		enqueuer = a.Queue
		ins := queue.NewInspector(&cfg.Redis)
		defer ins.Close()
		inspector = ins
	} else {
		logger.Warn("task queue unavailable, jobs will be recorded but not dispatched")
	}

	router := api.NewRouter(api.RouterConfig{
		DB:             a.DB,
		Redis:          a.Redis,
		Inspector:      inspector,
		Logger:         logger,
		JWTService:     auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry()),
		Repository:     a.Repository,
		Enqueuer:       enqueuer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
