package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoffSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), zaptest.NewLogger(t), "dial", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffGivesUp(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), zaptest.NewLogger(t), "dial", func() error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWithBackoffPermanent(t *testing.T) {
	bad := errors.New("invalid dsn")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), nil, "dial", func() error {
		calls++
		return Permanent(bad)
	})
	require.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestConfigBackOffCapped(t *testing.T) {
	b := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}.backOff()
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
}

func TestConfigBackOffJitter(t *testing.T) {
	b := Config{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, JitterEnabled: true}.backOff()
	b.Reset()
	d := b.NextBackOff()
	assert.GreaterOrEqual(t, d, 850*time.Millisecond)
	assert.LessOrEqual(t, d, 1150*time.Millisecond)
}

func TestWithBackoffCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithBackoff(ctx, fastConfig(3), nil, "dial", func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
