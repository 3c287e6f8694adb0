package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/ammx/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Func is the body of a scheduled job. Each run receives a context bounded by the job timeout.
type Func func(ctx context.Context) error

// Scheduler runs named jobs on cron specs with a seconds field.
// A run that is still in progress when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	specs  map[string]string
}

// New returns a Scheduler logging through logger.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := CronLogger(logger)
	return &Scheduler{
		// Seconds field, optional
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		specs:  make(map[string]string),
	}
}

// Add registers fn under name. ctx is the parent of every run.
func (s *Scheduler) Add(ctx context.Context, name, spec string, timeout time.Duration, fn Func) error {
	if _, ok := s.specs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.run(ctx, name, timeout, fn)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.specs[name] = spec
	return nil
}

// RunNow runs the named job body synchronously, outside the cron schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string, timeout time.Duration, fn Func) {
	s.run(ctx, name, timeout, fn)
}

func (s *Scheduler) run(ctx context.Context, name string, timeout time.Duration, fn Func) {
	if ctx.Err() != nil {
		return
	}
	// keep each run bounded
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(rctx)
	metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		s.logger.Warn("job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	metrics.JobRuns.WithLabelValues(name, "ok").Inc()
	s.logger.Debug("job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

// Jobs returns the registered job names with their specs.
func (s *Scheduler) Jobs() map[string]string {
	out := make(map[string]string, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron started", zap.Any("jobs", s.specs))
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	s *zap.SugaredLogger
}

// CronLogger adapts a zap logger to cron.Logger.
func CronLogger(logger *zap.Logger) cron.Logger {
	return cronLogger{s: logger.Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
