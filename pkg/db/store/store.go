package store

import (
	"context"
	"fmt"

	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/clickhouse"
	chledger "github.com/canopy-network/ammx/pkg/db/clickhouse/ledger"
	"github.com/canopy-network/ammx/pkg/db/postgres"
	pgledger "github.com/canopy-network/ammx/pkg/db/postgres/ledger"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
)

const (
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Backend returns the configured ledger backend (LEDGER_BACKEND, default postgres).
func Backend() string {
	return utils.Env("LEDGER_BACKEND", BackendPostgres)
}

// NewLedgerStore opens the ledger database named by LEDGER_DB on the configured backend,
// sizing its connection pool for component (indexer or query).
func NewLedgerStore(ctx context.Context, logger *zap.Logger, component string) (db.LedgerStore, error) {
	name := utils.Env("LEDGER_DB", "ammx")
	backend := Backend()
	logger.Info("Opening ledger store",
		zap.String("backend", backend),
		zap.String("database", name),
		zap.String("component", component))

	switch backend {
	case BackendPostgres:
		s, err := pgledger.New(ctx, logger, name, postgres.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendClickHouse:
		s, err := chledger.New(ctx, logger, name, clickhouse.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q (expected %s or %s)", backend, BackendPostgres, BackendClickHouse)
	}
}
