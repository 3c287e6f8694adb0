package query

import (
	"context"
	"time"

	"github.com/canopy-network/ammx/app/query/types"
	"github.com/canopy-network/ammx/pkg/analytics"
	"github.com/canopy-network/ammx/pkg/config"
	"github.com/canopy-network/ammx/pkg/db/store"
	"github.com/canopy-network/ammx/pkg/jobs"
	"github.com/canopy-network/ammx/pkg/logging"
	"github.com/canopy-network/ammx/pkg/pipeline"
	"github.com/canopy-network/ammx/pkg/redis"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
)

const (
	defaultPoolSchedule  = "0 */2 * * * *"
	defaultRatesSchedule = "0 */1 * * * *"
	defaultCacheSchedule = "0 */5 * * * *"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New("query")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	network, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid network configuration", zap.Error(err))
	}

	ledgerStore, err := store.NewLedgerStore(ctx, logger, "query")
	if err != nil {
		logger.Fatal("Unable to initialize ledger database", zap.Error(err))
	}

	// Initialize Redis client for real-time WebSocket events and shared caches (optional)
	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	sources := pipeline.NewSources(network, redisClient, logger)
	aggregator := &analytics.Aggregator{
		Store:    ledgerStore,
		Registry: sources.Registry,
		Oracle:   sources.Oracle,
		Logger:   logger,
	}

	app := &types.App{
		Store:       ledgerStore,
		Sources:     sources,
		Aggregator:  aggregator,
		DayCache:    analytics.NewDayCache(aggregator, logger),
		RedisClient: redisClient,
		Scheduler:   jobs.New(logger),
		Logger:      logger,
	}

	if err := SetupScheduler(ctx, app); err != nil {
		logger.Fatal("Unable to schedule jobs", zap.Error(err))
	}

	return app
}

// SetupScheduler registers the registry, rates and DayCache jobs and runs each once,
// in dependency order, so the first requests see a populated registry and cache.
func SetupScheduler(ctx context.Context, app *types.App) error {
	type job struct {
		name    string
		spec    string
		timeout time.Duration
		fn      jobs.Func
	}
	list := []job{
		{"rates", utils.Env("RATES_SCHEDULE", defaultRatesSchedule), 30 * time.Second, app.Sources.Oracle.Refresh},
		{"pool", utils.Env("POOL_COLLECT_SCHEDULE", defaultPoolSchedule), 2 * time.Minute, app.Sources.Collector.Collect},
		{"cache", utils.Env("CACHE_SCHEDULE", defaultCacheSchedule), 5 * time.Minute, func(ctx context.Context) error {
			app.DayCache.Refresh(ctx)
			return nil
		}},
	}
	for _, j := range list {
		if err := app.Scheduler.Add(ctx, j.name, j.spec, j.timeout, j.fn); err != nil {
			return err
		}
	}
	for _, j := range list {
		app.Scheduler.RunNow(ctx, j.name, j.timeout, j.fn)
	}
	return nil
}
