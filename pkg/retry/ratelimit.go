package retry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/canopy-network/ammx/pkg/metrics"
	"go.uber.org/zap"
)

const (
	RateLimitBaseDelay = 200 * time.Millisecond
	RateLimitMaxDelay  = 5 * time.Second
)

// ErrRateLimited marks a remote call rejected by throttling. Remote clients wrap it so callers can match with errors.Is.
var ErrRateLimited = errors.New("Too Many Requests")

var rateLimitPattern = regexp.MustCompile(`(?i)too many requests`)

// IsRateLimited reports whether err is a throttling signal, either ErrRateLimited or a message carrying the pattern.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

// RateLimitDelay returns min(attempt^2 * 200ms, 5s). Attempts start at 1.
func RateLimitDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 6^2 * 200ms is already past the ceiling; stop before the square can overflow.
	if attempt > 5 {
		return RateLimitMaxDelay
	}
	d := time.Duration(attempt*attempt) * RateLimitBaseDelay
	if d > RateLimitMaxDelay {
		return RateLimitMaxDelay
	}
	return d
}

// Executor retries remote calls for as long as they fail with a rate-limit signal.
// Any other failure is returned immediately. There is no attempt bound; only ctx ends the loop.
type Executor struct {
	Logger *zap.Logger
	// Sleep waits for d or until ctx is done. Nil means a timer based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor returns an Executor using real timers.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{Logger: logger}
}

// Do runs fn until it succeeds, fails with a non rate-limit error, or ctx is cancelled.
// A nil Executor behaves like NewExecutor(nil).
func (e *Executor) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if e == nil {
		e = &Executor{}
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger().Debug("Rate limited call succeeded",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}

		delay := RateLimitDelay(attempt)
		metrics.RateLimitRetries.WithLabelValues(operation).Inc()
		e.logger().Warn("Rate limited, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: retry cancelled: %w", operation, sleepErr)
		}
	}
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
