package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultDSN = "clickhouse://localhost:9000"

const (
	MergeTree          = "MergeTree"
	ReplacingMergeTree = "ReplacingMergeTree"
)

// Client holds one ClickHouse connection. It starts on the "default" database
// and moves to TargetDatabase once that database exists.
type Client struct {
	Logger         *zap.Logger
	Db             driver.Conn
	TargetDatabase string
	Cluster        string

	pool *PoolConfig
}

// PoolConfig sizes the driver connection pool for one binary.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Component       string
}

// GetPoolConfigForComponent returns pool sizes for the indexer and query binaries.
// Anything else reads CLICKHOUSE_MAX_OPEN_CONNS, CLICKHOUSE_MAX_IDLE_CONNS and
// CLICKHOUSE_CONN_MAX_LIFETIME.
func GetPoolConfigForComponent(component string) *PoolConfig {
	cfg := &PoolConfig{ConnMaxLifetime: 5 * time.Minute, Component: component}
	switch component {
	case "indexer":
		cfg.MaxOpenConns, cfg.MaxIdleConns = 24, 8
	case "query":
		cfg.MaxOpenConns, cfg.MaxIdleConns = 16, 4
	default:
		cfg.MaxOpenConns = utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 20)
		cfg.MaxIdleConns = utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5)
		if d, err := time.ParseDuration(utils.Env("CLICKHOUSE_CONN_MAX_LIFETIME", "")); err == nil && d > 0 {
			cfg.ConnMaxLifetime = d
		}
	}
	cfg.MaxIdleConns = min(cfg.MaxIdleConns, cfg.MaxOpenConns)
	return cfg
}

// New dials CLICKHOUSE_ADDR on the default database, retrying until the server answers
// or ctx expires. dbName is remembered as the target for SwitchToTargetDatabase.
func New(ctx context.Context, logger *zap.Logger, dbName string, poolConfig ...*PoolConfig) (Client, error) {
	client := Client{
		Logger:         logger,
		TargetDatabase: dbName,
		Cluster:        utils.Env("CLICKHOUSE_CLUSTER", ""),
		pool:           GetPoolConfigForComponent(""),
	}
	if len(poolConfig) > 0 && poolConfig[0] != nil {
		client.pool = poolConfig[0]
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	err := retry.WithBackoff(dialCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, opts, err := client.open(dialCtx, "default")
		if err != nil {
			return err
		}
		client.Db = conn
		logger.Info("ClickHouse connection pool configured",
			zap.String("database", dbName),
			zap.String("component", client.pool.Component),
			zap.Strings("replicas", opts.Addr),
			zap.Int("max_open_conns", opts.MaxOpenConns),
			zap.Int("max_idle_conns", opts.MaxIdleConns),
			zap.Duration("conn_max_lifetime", opts.ConnMaxLifetime),
		)
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

// options builds driver options from CLICKHOUSE_ADDR. Credentials and a comma separated
// replica list come from the DSN; the pool and database are applied on top.
func (c *Client) options(database string) (*clickhouse.Options, error) {
	opts, err := clickhouse.ParseDSN(utils.Env("CLICKHOUSE_ADDR", defaultDSN))
	if err != nil {
		return nil, fmt.Errorf("parse CLICKHOUSE_ADDR: %w", err)
	}
	if len(opts.Addr) == 0 {
		opts.Addr = []string{"localhost:9000"}
	}
	if opts.Auth.Username == "" {
		opts.Auth.Username = "default"
	}
	opts.Auth.Database = database
	opts.ConnOpenStrategy = parseConnOpenStrategy(utils.Env("CLICKHOUSE_CONN_STRATEGY", "in_order"))
	opts.DialTimeout = 30 * time.Second
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}
	opts.Settings["prefer_column_name_to_alias"] = 1

	if c.pool != nil {
		opts.MaxOpenConns = c.pool.MaxOpenConns
		opts.MaxIdleConns = c.pool.MaxIdleConns
		opts.ConnMaxLifetime = c.pool.ConnMaxLifetime
	}
	if c.Logger != nil && c.Logger.Core().Enabled(zap.DebugLevel) {
		opts.Debugf = c.Logger.Named("clickhouse.driver").Sugar().Debugf
	}
	return opts, nil
}

func (c *Client) open(ctx context.Context, database string) (driver.Conn, *clickhouse.Options, error) {
	opts, err := c.options(database)
	if err != nil {
		return nil, nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open clickhouse %s: %w", database, err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ping clickhouse %s: %w", database, err)
	}
	return conn, opts, nil
}

// parseConnOpenStrategy accepts in_order, round_robin or random. Unknown values mean in_order,
// which keeps reads on the replica that took the writes.
func parseConnOpenStrategy(strategy string) clickhouse.ConnOpenStrategy {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "round_robin", "roundrobin":
		return clickhouse.ConnOpenRoundRobin
	case "random":
		return clickhouse.ConnOpenRandom
	default:
		return clickhouse.ConnOpenInOrder
	}
}

// SanitizeName lowercases id and replaces characters ClickHouse rejects in identifiers.
func SanitizeName(id string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(id))
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.Db.Exec(ctx, query, args...)
}

func (c *Client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.Db.QueryRow(ctx, query, args...)
}

func (c *Client) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.Db.Query(ctx, query, args...)
}

func (c *Client) Select(ctx context.Context, dest any, query string, args ...any) error {
	return c.Db.Select(ctx, dest, query, args...)
}

func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx)
}

func (c *Client) Close() error {
	return c.Db.Close()
}

// SwitchToTargetDatabase replaces the connection with one bound to TargetDatabase.
func (c *Client) SwitchToTargetDatabase(ctx context.Context) error {
	if c.TargetDatabase == "" {
		return errors.New("TargetDatabase is not set")
	}
	conn, _, err := c.open(ctx, c.TargetDatabase)
	if err != nil {
		return err
	}
	if c.Db != nil {
		if err := c.Db.Close(); err != nil {
			c.Logger.Warn("close default database connection", zap.Error(err))
		}
	}
	c.Db = conn
	c.Logger.Info("Switched to target database", zap.String("database", c.TargetDatabase))
	return nil
}

// OnCluster is the ON CLUSTER clause for DDL, empty on a single node.
func (c *Client) OnCluster() string {
	if c.Cluster == "" {
		return ""
	}
	return "ON CLUSTER " + c.Cluster
}

// Engine picks the replicated flavour of engine when a cluster is configured.
func (c *Client) Engine(engine, versionCol string) string {
	if c.Cluster != "" {
		engine = "Replicated" + engine
	}
	if versionCol == "" {
		return engine
	}
	return fmt.Sprintf("%s(%s)", engine, versionCol)
}

func (c *Client) CreateDbIfNotExists(ctx context.Context, dbName string) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s %s ENGINE = Atomic", dbName, c.OnCluster())
	c.Logger.Info("Creating database", zap.String("database", dbName))
	return c.Exec(ctx, query)
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
