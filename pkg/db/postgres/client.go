package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Executor is satisfied by *pgxpool.Pool and pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client is a pool bound to TargetDatabase.
type Client struct {
	Logger         *zap.Logger
	Pool           *pgxpool.Pool
	TargetDatabase string
}

type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Component       string
}

// New connects to POSTGRES_URL, creates dbName when missing and returns a pool bound to it.
// Connection attempts are retried with backoff.
func New(ctx context.Context, logger *zap.Logger, dbName string, poolConfig ...*PoolConfig) (client Client, err error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	client.TargetDatabase = dbName

	dbURL := utils.Env("POSTGRES_URL", "postgres://localhost:5432/postgres")
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return Client{}, fmt.Errorf("failed to parse POSTGRES_URL: %w", err)
	}

	poolConf := GetPoolConfigForComponent("")
	if len(poolConfig) > 0 && poolConfig[0] != nil {
		poolConf = poolConfig[0]
	}
	config.MinConns = poolConf.MinConns
	config.MaxConns = poolConf.MaxConns
	config.MaxConnLifetime = poolConf.ConnMaxLifetime
	config.MaxConnIdleTime = poolConf.ConnMaxIdleTime

	pool, err := connect(connCtx, logger, config, "postgres_connection")
	if err != nil {
		return Client{}, err
	}
	client.Pool = pool

	if dbName != "" && config.ConnConfig.Database != dbName {
		if err := client.CreateDbIfNotExists(connCtx, dbName); err != nil {
			pool.Close()
			return Client{}, err
		}
		pool.Close()

		target := config.Copy()
		target.ConnConfig.Database = dbName
		client.Pool, err = connect(connCtx, logger, target, "postgres_target_connection")
		if err != nil {
			return Client{}, err
		}
	}

	logger.Info("PostgreSQL connection pool configured",
		zap.String("database", dbName),
		zap.String("component", poolConf.Component),
		zap.Int32("min_conns", poolConf.MinConns),
		zap.Int32("max_conns", poolConf.MaxConns),
		zap.Duration("conn_max_lifetime", poolConf.ConnMaxLifetime),
		zap.Duration("conn_max_idle_time", poolConf.ConnMaxIdleTime),
	)
	return client, nil
}

func connect(ctx context.Context, logger *zap.Logger, config *pgxpool.Config, operation string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, operation, func() error {
		p, openErr := pgxpool.NewWithConfig(ctx, config)
		if openErr != nil {
			return fmt.Errorf("failed to create postgres connection pool: %w", openErr)
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			return fmt.Errorf("failed to ping postgres: %w", pingErr)
		}
		pool = p
		return nil
	})
	return pool, err
}

// CreateDbIfNotExists creates dbName unless pg_database already lists it.
func (c *Client) CreateDbIfNotExists(ctx context.Context, dbName string) error {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)"
	if err := c.Pool.QueryRow(ctx, query, dbName).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE does not take parameters.
	query = fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{dbName}.Sanitize())
	c.Logger.Info("Creating database", zap.String("database", dbName))
	if _, err := c.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.GetExecutor(ctx).Exec(ctx, query, args...)
	return err
}

// Query leaves closing rows to the caller.
func (c *Client) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return c.GetExecutor(ctx).Query(ctx, query, args...)
}

func (c *Client) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return c.GetExecutor(ctx).QueryRow(ctx, query, args...)
}

// BeginFunc executes fn within a transaction. The transaction is carried in the context
// passed to fn so helpers called from it join the transaction.
func (c *Client) BeginFunc(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, c.Pool, func(tx pgx.Tx) error {
		return fn(c.WithTx(ctx, tx))
	})
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

func (c *Client) Close() {
	c.Pool.Close()
}

type txKey struct{}

// WithTx carries tx in ctx for GetExecutor.
func (c *Client) WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetExecutor returns the transaction carried by ctx, or the pool.
func (c *Client) GetExecutor(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return c.Pool
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var componentConns = map[string][2]int32{
	"indexer": {4, 24},
	"query":   {2, 16},
}

// GetPoolConfigForComponent sizes the pool per binary. The indexer gets the most
// connections since ingest writes from one worker per pair.
func GetPoolConfigForComponent(component string) *PoolConfig {
	conns, ok := componentConns[component]
	if !ok {
		conns = [2]int32{2, 20}
	}
	return &PoolConfig{
		MinConns:        conns[0],
		MaxConns:        conns[1],
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		Component:       component,
	}
}
