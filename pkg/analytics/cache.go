package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-network/ammx/pkg/metrics"
	"go.uber.org/zap"
)

// DaySeries computes the full day series.
type DaySeries interface {
	TVLsByDay(ctx context.Context, since time.Time) ([]DayTVL, error)
	VolumesByDay(ctx context.Context, since time.Time) ([]DayVolume, error)
}

// DayCache keeps the last non-empty TVL and volume day series for the read API.
type DayCache struct {
	Source DaySeries
	Logger *zap.Logger

	mu      sync.RWMutex
	tvls    []DayTVL
	volumes []DayVolume
}

func NewDayCache(source DaySeries, logger *zap.Logger) *DayCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DayCache{Source: source, Logger: logger, tvls: []DayTVL{}, volumes: []DayVolume{}}
}

// Refresh recomputes both series. A series is only replaced by a non-empty result;
// failures are logged and the cached value is kept.
func (c *DayCache) Refresh(ctx context.Context) {
	tvls, err := c.Source.TVLsByDay(ctx, time.Time{})
	switch {
	case err != nil:
		metrics.CacheRefreshes.WithLabelValues("tvls", "error").Inc()
		c.Logger.Warn("Failed to refresh TVL series", zap.Error(err))
	case len(tvls) == 0:
		metrics.CacheRefreshes.WithLabelValues("tvls", "empty").Inc()
	default:
		c.mu.Lock()
		c.tvls = tvls
		c.mu.Unlock()
		metrics.CacheRefreshes.WithLabelValues("tvls", "ok").Inc()
	}

	volumes, err := c.Source.VolumesByDay(ctx, time.Time{})
	switch {
	case err != nil:
		metrics.CacheRefreshes.WithLabelValues("volumes", "error").Inc()
		c.Logger.Warn("Failed to refresh volume series", zap.Error(err))
	case len(volumes) == 0:
		metrics.CacheRefreshes.WithLabelValues("volumes", "empty").Inc()
	default:
		c.mu.Lock()
		c.volumes = volumes
		c.mu.Unlock()
		metrics.CacheRefreshes.WithLabelValues("volumes", "ok").Inc()
	}
}

// Snapshot returns the cached series. The slices must not be modified.
func (c *DayCache) Snapshot() ([]DayTVL, []DayVolume) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tvls, c.volumes
}
