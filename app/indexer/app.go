package indexer

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/ammx/pkg/analytics"
	"github.com/canopy-network/ammx/pkg/config"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/store"
	"github.com/canopy-network/ammx/pkg/ingest"
	"github.com/canopy-network/ammx/pkg/jobs"
	"github.com/canopy-network/ammx/pkg/logging"
	"github.com/canopy-network/ammx/pkg/pipeline"
	"github.com/canopy-network/ammx/pkg/redis"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
)

// App runs the collection pipeline of one network on a cron schedule: pair registry,
// USD rates, event ingest, ledger purification and the daily leaderboard snapshot.
type App struct {
	// Ledger database (postgres or clickhouse)
	Store db.LedgerStore
	// Remote collaborators and the Pair Registry
	Sources *pipeline.Sources

	Ingestor   *ingest.Ingestor
	Purifier   *ingest.Purifier
	Aggregator *analytics.Aggregator

	// Pool is shared by the ingestor and the purifier.
	Pool pond.Pool

	// RedisClient publishes live ingest notifications. Nil when Redis is disabled.
	RedisClient *redis.Client

	Scheduler *jobs.Scheduler

	// Logger is used to log messages, errors, and events during the application's lifecycle and operations.
	Logger *zap.Logger

	// Server serves health and metrics.
	Server *http.Server
}

// Initialize initializes the App.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New("indexer")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	network, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid network configuration", zap.Error(err))
	}

	ledgerStore, err := store.NewLedgerStore(ctx, logger, "indexer")
	if err != nil {
		logger.Fatal("Unable to initialize ledger database", zap.Error(err))
	}

	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - live notifications and shared caches disabled", zap.Error(err))
			redisClient = nil
		}
	}

	app := New(ledgerStore, pipeline.NewSources(network, redisClient, logger), redisClient, logger)
	if err := app.SetupScheduler(ctx); err != nil {
		logger.Fatal("Unable to schedule jobs", zap.Error(err))
	}
	return app
}

// New assembles the pipeline components over an open store and wired sources.
func New(ledgerStore db.LedgerStore, sources *pipeline.Sources, redisClient *redis.Client, logger *zap.Logger) *App {
	pool := pond.NewPool(utils.EnvInt("INDEXER_WORKERS", runtime.NumCPU()*2))

	// a typed nil must not leak into the Publisher interface
	var publisher ingest.Publisher
	if redisClient != nil {
		publisher = redisClient
	}

	return &App{
		Store:   ledgerStore,
		Sources: sources,
		Ingestor: &ingest.Ingestor{
			Registry:  sources.Registry,
			Feed:      sources.Feed,
			Store:     ledgerStore,
			Cursors:   ingest.NewCursors(),
			Publisher: publisher,
			Executor:  sources.Executor,
			Pool:      pool,
			Network:   sources.Network.Name,
			Logger:    logger,
		},
		Purifier: &ingest.Purifier{
			Events:       ledgerStore,
			Transactions: ledgerStore,
			Senders:      sources.Chain,
			Executor:     sources.Executor,
			Pool:         pool,
			BatchSize:    utils.EnvInt("PURIFY_BATCH", ingest.DefaultPurifyBatch),
			Network:      sources.Network.Name,
			Logger:       logger,
		},
		Aggregator: &analytics.Aggregator{
			Store:    ledgerStore,
			Registry: sources.Registry,
			Oracle:   sources.Oracle,
			Logger:   logger,
		},
		Pool:        pool,
		RedisClient: redisClient,
		Scheduler:   jobs.New(logger),
		Logger:      logger,
	}
}

// Ready reports whether a pair registry snapshot has been published.
func (a *App) Ready() bool {
	return a.Sources.Registry.Version() > 0
}

// Start starts the scheduler and the HTTP server and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start()
	if a.Server != nil {
		go func() {
			if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.Logger.Error("HTTP server stopped", zap.Error(err))
			}
		}()
	}
	<-ctx.Done()
	a.Stop()
}

// Stop stops the scheduler, waits for running jobs and closes connections.
func (a *App) Stop() {
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Server.Shutdown(shutdownCtx)
	}
	a.Scheduler.Stop()
	a.Pool.StopAndWait()

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
