package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Config bounds retries of a startup operation such as a store connect.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:    10,
		InitialDelay:  2 * time.Second,
		MaxDelay:      60 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// backOff maps cfg onto an exponential schedule. Jitter spreads each delay by 15%.
func (cfg Config) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	if cfg.JitterEnabled {
		b.RandomizationFactor = 0.15
	}
	return b
}

// Permanent wraps err so WithBackoff returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// WithBackoff runs fn until it succeeds, returns a Permanent error, exhausts
// cfg.MaxRetries attempts or ctx is done.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retry cancelled: %w", err)
	}
	maxTries := max(cfg.MaxRetries, 1)

	attempts := 0
	permanent := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := fn()
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return struct{}{}, err
	},
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Operation failed, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
				zap.Int("max_retries", maxTries),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)

	switch {
	case err == nil:
		if attempts > 1 {
			logger.Info("Operation succeeded after retries",
				zap.String("operation", operation),
				zap.Int("attempts", attempts))
		}
		return nil
	case permanent:
		return fmt.Errorf("%s failed: %w", operation, err)
	case ctx.Err() != nil:
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
	}
}
