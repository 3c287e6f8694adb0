package types

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/ammx/pkg/analytics"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/jobs"
	"github.com/canopy-network/ammx/pkg/pipeline"
	"github.com/canopy-network/ammx/pkg/redis"
	"go.uber.org/zap"
)

type App struct {
	// Ledger database (postgres or clickhouse)
	Store db.LedgerStore
	// Remote collaborators and the Pair Registry snapshot served by this process
	Sources *pipeline.Sources
	// Aggregator answers every analytics query
	Aggregator *analytics.Aggregator
	// DayCache holds the precomputed daily TVL and volume series
	DayCache *analytics.DayCache
	// RedisClient feeds the websocket live stream. Nil when Redis is disabled.
	RedisClient *redis.Client
	// Scheduler refreshes the registry, the USD rates and the DayCache
	Scheduler *jobs.Scheduler
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
