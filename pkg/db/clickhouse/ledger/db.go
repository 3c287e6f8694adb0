package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/clickhouse"
	"go.uber.org/zap"
)

// DB is the ClickHouse ledger store. Tables are ReplacingMergeTree keyed by event_id,
// so reads go through FINAL to collapse duplicate inserts.
type DB struct {
	clickhouse.Client
	Name string
}

var _ db.LedgerStore = (*DB)(nil)

// New connects to ClickHouse, creates the ledger database and its tables.
func New(ctx context.Context, logger *zap.Logger, name string, poolConfig *clickhouse.PoolConfig) (*DB, error) {
	name = clickhouse.SanitizeName(name)
	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, poolConfig)
	if err != nil {
		return nil, err
	}

	ledgerDB := &DB{Client: client, Name: name}
	if err := ledgerDB.InitializeDB(ctx); err != nil {
		_ = ledgerDB.Client.Close()
		return nil, err
	}
	return ledgerDB, nil
}

// InitializeDB creates the database, switches to it and ensures the ledger tables exist.
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing ledger database", zap.String("database", db.Name))

	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", db.Name, err)
	}
	if err := db.SwitchToTargetDatabase(ctx); err != nil {
		return err
	}

	for _, init := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"pair_events", db.initPairEvents},
		{"pair_transactions", db.initPairTransactions},
		{"snapshots", db.initSnapshots},
	} {
		db.Logger.Debug("Initialize table", zap.String("table", init.name))
		if err := init.fn(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", init.name, err)
		}
	}
	return nil
}

// DatabaseName returns the name of the ledger database
func (db *DB) DatabaseName() string {
	return db.Name
}

func rangeClause(r db.TimeRange, conds []string, args []any) ([]string, []any) {
	if r.Start > 0 {
		conds = append(conds, "event_time >= toDateTime(?)")
		args = append(args, r.Start)
	}
	if r.End > 0 {
		conds = append(conds, "event_time <= toDateTime(?)")
		args = append(args, r.End)
	}
	return conds, args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
