package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/hugh/asset-shipper/internal/app"
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
	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting asset-shipper worker", "concurrency", cfg.Worker.Concurrency)

	a, err := app.New(context.Background(), cfg, logger, app.Options{UseRedis: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Queue == nil {
		logger.Error("worker requires Redis", "addr", cfg.Redis.Addr())
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency, logger)

	// Create task handler
	handler := tasks.NewHandler(a.DB, logger, a.Shipper, a.States, a.Queue)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic state sweep
	var scheduler *asynq.Scheduler
	if cfg.Shipper.StateCron != "" {
		scheduler = queue.NewScheduler(&cfg.Redis)
		entryID, err := scheduler.Register(cfg.Shipper.StateCron, tasks.NewStateSweepTask(),
			asynq.Queue(tasks.QueueLow),
			asynq.Unique(time.Minute),
		)
		if err != nil {
			logger.Error("failed to register state sweep", "error", err)
			os.Exit(1)
		}
		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}

		next, _ := util.NextCronTime(cfg.Shipper.StateCron, time.Now())
		logger.Info("state sweep scheduled", "entry_id", entryID, "cron", cfg.Shipper.StateCron, "next_run", next)
	}

	logger.Info("worker started, waiting for tasks...")

	// Run blocks until SIGINT or SIGTERM, then drains in-flight tasks
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	logger.Info("shutting down worker...")
	if scheduler != nil {
		scheduler.Shutdown()
	}

	logger.Info("worker stopped")
}
