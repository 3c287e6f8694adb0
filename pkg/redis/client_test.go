package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb, zaptest.NewLogger(t)), mr
}

func TestGetMissingKey(t *testing.T) {
	c, _ := newTestClient(t)

	v, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestSetExExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetEx(ctx, "edges", "[1]", time.Hour))
	v, ok, err := c.Get(ctx, "edges")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1]", v)
	assert.Equal(t, time.Hour, mr.TTL("edges"))

	mr.FastForward(time.Hour + time.Second)
	_, ok, err = c.Get(ctx, "edges")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishJSON(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, "events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	c.PublishJSON(ctx, "events", map[string]int{"inserted": 2})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inserted":2}`, msg.Payload)
	require.NoError(t, c.Health(ctx))
}

func TestOptionsFromHostPort(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")

	opts, err := Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
}

func TestOptionsFromURL(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://:pw@cache:6390/2")

	opts, err := Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6390", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
}

func TestNewClientAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr()+"/0")

	c, err := NewClient(context.Background(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Health(context.Background()))
}
