// Package app wires configuration into the services shared by the server,
// the worker and the command line tool.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/cache"
	"github.com/hugh/asset-shipper/internal/database"
	"github.com/hugh/asset-shipper/internal/policy"
	"github.com/hugh/asset-shipper/internal/repository"
	"github.com/hugh/asset-shipper/internal/storage"
	"github.com/hugh/asset-shipper/internal/tasks"
	"github.com/hugh/asset-shipper/pkg/config"
	"github.com/hugh/asset-shipper/pkg/queue"
)

var (
	_ assets.RecordSource    = (*storage.Loader)(nil)
	_ assets.TypeRegistry    = (*policy.Service)(nil)
	_ assets.PolicyLookup    = (*policy.Service)(nil)
	_ assets.AccountResolver = (*cache.AccountResolver)(nil)
	_ repository.Repository  = (*repository.Store)(nil)
)

// Options selects the optional parts of the wiring.
type Options struct {
	// UseRedis connects to Redis for the shared account cache and the task
	// queue. Without it completions are not published.
	UseRedis bool
}

// App holds the wired services. Close releases every connection it opened.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Queue      *asynq.Client
	Repository *repository.Store
	Policies   *policy.Service
	Shipper    *assets.Shipper
	States     *assets.StateService

	closers []io.Closer
}

// New connects to the database and object store and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB)
	}

	if opts.UseRedis {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logger.Warn("failed to connect to Redis", "error", err)
			_ = a.Redis.Close()
			a.Redis = nil
		} else {
			a.Queue = queue.NewClient(&cfg.Redis)
			a.closers = append(a.closers, a.Redis, a.Queue)
		}
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithDB builds the services on an existing database handle. The object
// store is still created from cfg.
func NewWithDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *gorm.DB) (*App, error) {
	a := &App{Config: cfg, Logger: logger, DB: db}
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	store, err := storage.New(ctx, &cfg.Storage, a.Logger)
	if err != nil {
		return fmt.Errorf("creating object store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.Repository = repository.NewStore(a.DB, cfg.Shipper.BatchSize, a.Logger)
	a.Policies = policy.NewService(a.DB, a.Logger)

	var accountCache cache.Store = cache.NewMemoryStore(cfg.Shipper.AccountCacheSize, cfg.Shipper.AccountCacheTTL())
	if a.Redis != nil {
		shared := cache.NewRedisStore(a.Redis, "asset-shipper:", cfg.Shipper.AccountCacheTTL())
		accountCache = cache.NewTieredStore(accountCache, shared)
	}
	accounts := cache.NewAccountResolver(accountCache, cache.NewAccountDirectory(a.DB), a.Logger)

	var notifier assets.Notifier
	if a.Queue != nil {
		notifier = tasks.NewCompletionPublisher(a.Queue, a.Logger)
	}

	a.Shipper = assets.NewShipper(
		a.Repository,
		storage.NewLoader(store, a.Logger),
		a.Policies,
		a.Policies,
		accounts,
		notifier,
		assets.ShipperConfig{TagWorkers: cfg.Shipper.TagWorkers},
		a.Logger,
	)
	a.States = assets.NewStateService(a.Repository, a.Policies, a.Policies, a.Logger)
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
