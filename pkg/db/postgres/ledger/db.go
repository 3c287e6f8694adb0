package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the PostgreSQL ledger store.
type DB struct {
	postgres.Client
	Name string
}

var _ db.LedgerStore = (*DB)(nil)

// New connects to the ledger database and creates its tables.
func New(ctx context.Context, logger *zap.Logger, name string, poolConfig *postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, poolConfig)
	if err != nil {
		return nil, err
	}

	ledgerDB := &DB{Client: client, Name: name}
	if err := ledgerDB.InitializeDB(ctx); err != nil {
		ledgerDB.Client.Close()
		return nil, err
	}
	return ledgerDB, nil
}

// InitializeDB ensures the ledger tables exist.
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing ledger database", zap.String("database", db.Name))

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

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Client.Close()
	return nil
}

// rangeClause appends event_time bounds for r to conds, numbering placeholders after args.
func rangeClause(r db.TimeRange, conds []string, args []any) ([]string, []any) {
	if r.Start > 0 {
		args = append(args, r.Start)
		conds = append(conds, fmt.Sprintf("event_time >= to_timestamp($%d::bigint)", len(args)))
	}
	if r.End > 0 {
		args = append(args, r.End)
		conds = append(conds, fmt.Sprintf("event_time <= to_timestamp($%d::bigint)", len(args)))
	}
	return conds, args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
