package indexer

import (
	"context"
	"time"

	"github.com/canopy-network/ammx/pkg/jobs"
	"github.com/canopy-network/ammx/pkg/utils"
)

// Default schedules, with a leading seconds field.
const (
	DefaultPoolSchedule     = "0 */2 * * * *"
	DefaultRatesSchedule    = "0 */1 * * * *"
	DefaultIngestSchedule   = "*/20 * * * * *"
	DefaultPurifySchedule   = "*/30 * * * * *"
	DefaultSnapshotSchedule = "0 0 0 * * *"
)

type job struct {
	name    string
	spec    string
	timeout time.Duration
	fn      jobs.Func
	// warm runs the job once at startup
	warm bool
}

func (a *App) schedule() []job {
	return []job{
		{"rates", utils.Env("RATES_SCHEDULE", DefaultRatesSchedule), 30 * time.Second, a.Sources.Oracle.Refresh, true},
		{"pool", utils.Env("POOL_COLLECT_SCHEDULE", DefaultPoolSchedule), 2 * time.Minute, a.Sources.Collector.Collect, true},
		{"ingest", utils.Env("INGEST_SCHEDULE", DefaultIngestSchedule), 20 * time.Second, a.Ingestor.RunOnce, false},
		{"purify", utils.Env("PURIFY_SCHEDULE", DefaultPurifySchedule), 30 * time.Second, a.purify, false},
		{"snapshot", utils.Env("SNAPSHOT_SCHEDULE", DefaultSnapshotSchedule), 5 * time.Minute, a.snapshot, false},
	}
}

// SetupScheduler registers every pipeline job, then warms the USD rates and the
// pair registry so the first ingest run has pairs to follow.
func (a *App) SetupScheduler(ctx context.Context) error {
	list := a.schedule()
	for _, j := range list {
		if err := a.Scheduler.Add(ctx, j.name, j.spec, j.timeout, j.fn); err != nil {
			return err
		}
	}
	for _, j := range list {
		if j.warm {
			a.Scheduler.RunNow(ctx, j.name, j.timeout, j.fn)
		}
	}
	return nil
}

func (a *App) purify(ctx context.Context) error {
	_, err := a.Purifier.RunOnce(ctx)
	return err
}

func (a *App) snapshot(ctx context.Context) error {
	_, err := a.Aggregator.TakeSnapshot(ctx)
	return err
}
