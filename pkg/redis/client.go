package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client used for short lived caches and live notifications.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// Options reads connection settings. REDIS_URL wins when set, otherwise REDIS_HOST,
// REDIS_PORT, REDIS_PASSWORD and REDIS_DB are combined.
func Options() (*redis.Options, error) {
	var opts *redis.Options
	if raw := utils.Env("REDIS_URL", ""); raw != "" {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     utils.Env("REDIS_HOST", "localhost") + ":" + utils.Env("REDIS_PORT", "6379"),
			Password: utils.Env("REDIS_PASSWORD", ""),
			DB:       int(utils.EnvInt64("REDIS_DB", 0)),
		}
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

// NewClient dials Redis and fails when the first PING does not answer within 5s.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	opts, err := Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return NewFromClient(rdb, logger), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: rdb, logger: logger}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Get returns the value at key. A missing key is reported with ok=false and no error.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetEx stores value at key with the given expiry.
func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// PublishJSON publishes message as JSON. Failures are logged and dropped.
func (c *Client) PublishJSON(ctx context.Context, channel string, message interface{}) {
	bz, err := json.Marshal(message)
	if err != nil {
		c.logger.Warn("Failed to encode Redis message", zap.String("channel", channel), zap.Error(err))
		return
	}
	if err := c.client.Publish(ctx, channel, bz).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// Subscribe returns a PubSub the caller must close.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
