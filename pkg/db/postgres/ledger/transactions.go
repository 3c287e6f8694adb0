package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/ammx/pkg/db"
	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/jackc/pgx/v5"
)

const pairTransactionColumns = `id, event_id, pair_address, account_address, transaction_hash, key_name,
	amount0::text AS amount0, amount1::text AS amount1, swap_reverse, fee::text AS fee, event_time, created_at`

func (db *DB) initPairTransactions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pair_transactions (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			pair_address TEXT NOT NULL,
			account_address TEXT NOT NULL DEFAULT '',
			transaction_hash TEXT NOT NULL DEFAULT '',
			key_name TEXT NOT NULL,
			amount0 NUMERIC(78, 0) NOT NULL DEFAULT 0,
			amount1 NUMERIC(78, 0) NOT NULL DEFAULT 0,
			swap_reverse SMALLINT NOT NULL DEFAULT 0,
			fee NUMERIC(78, 0) NOT NULL DEFAULT 0,
			event_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS pair_transactions_time_idx ON pair_transactions (event_time DESC, id DESC);
		CREATE INDEX IF NOT EXISTS pair_transactions_account_idx ON pair_transactions (account_address, key_name);
	`
	return db.Exec(ctx, query)
}

func (db *DB) InsertPairTransaction(ctx context.Context, tx *ledgermodels.PairTransaction) (bool, error) {
	query := `
		INSERT INTO pair_transactions (event_id, pair_address, account_address, transaction_hash, key_name,
			amount0, amount1, swap_reverse, fee, event_time)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9::numeric, $10)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := db.GetExecutor(ctx).Exec(ctx, query,
		tx.EventID, tx.PairAddress, tx.AccountAddress, tx.TransactionHash, tx.KeyName,
		orZero(tx.Amount0), orZero(tx.Amount1), int16(tx.SwapReverse), orZero(tx.Fee), tx.EventTime.UTC())
	if err != nil {
		return false, fmt.Errorf("insert pair transaction %s: %w", tx.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) DailyAmounts(ctx context.Context, keyNames []string) ([]ledgermodels.DailyAmountRow, error) {
	query := `
		SELECT to_char(event_time AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			pair_address, key_name, swap_reverse,
			SUM(amount0)::text AS sum_amount0,
			SUM(amount1)::text AS sum_amount1
		FROM pair_transactions
		WHERE key_name = ANY($1)
		GROUP BY day, pair_address, key_name, swap_reverse
		ORDER BY day ASC
	`
	rows, err := db.Query(ctx, query, keyNames)
	if err != nil {
		return nil, fmt.Errorf("daily amounts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.DailyAmountRow])
}

func (db *DB) PairVolumes(ctx context.Context, r db.TimeRange) ([]ledgermodels.PairVolumeRow, error) {
	conds, args := rangeClause(r, []string{"key_name = 'Swap'"}, nil)
	query := `
		SELECT pair_address, swap_reverse,
			SUM(amount0)::text AS sum_amount0,
			SUM(amount1)::text AS sum_amount1
		FROM pair_transactions` + where(conds) + `
		GROUP BY pair_address, swap_reverse
	`
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pair volumes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.PairVolumeRow])
}

func (db *DB) PairSwapFees(ctx context.Context, r db.TimeRange) ([]ledgermodels.PairFeeRow, error) {
	conds, args := rangeClause(r, []string{"key_name = 'Swap'"}, nil)
	query := `
		SELECT pair_address, swap_reverse, SUM(fee)::text AS sum_fee
		FROM pair_transactions` + where(conds) + `
		GROUP BY pair_address, swap_reverse
	`
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pair swap fees: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.PairFeeRow])
}

func (db *DB) AccountAmounts(ctx context.Context, keyNames []string) ([]ledgermodels.AccountAmountRow, error) {
	query := `
		SELECT account_address, pair_address, key_name,
			SUM(amount0)::text AS sum_amount0,
			SUM(amount1)::text AS sum_amount1
		FROM pair_transactions
		WHERE key_name = ANY($1) AND account_address <> ''
		GROUP BY account_address, pair_address, key_name
	`
	rows, err := db.Query(ctx, query, keyNames)
	if err != nil {
		return nil, fmt.Errorf("account amounts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.AccountAmountRow])
}

func (db *DB) FirstEventTimes(ctx context.Context, keyName string) (map[string]time.Time, error) {
	rows, err := db.Query(ctx, `
		SELECT account_address, MIN(event_time)
		FROM pair_transactions
		WHERE key_name = $1 AND account_address <> ''
		GROUP BY account_address
	`, keyName)
	if err != nil {
		return nil, fmt.Errorf("first event times: %w", err)
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var account string
		var first time.Time
		if err := rows.Scan(&account, &first); err != nil {
			return nil, fmt.Errorf("scan first event time: %w", err)
		}
		out[account] = first
	}
	return out, rows.Err()
}

func (db *DB) ListTransactions(ctx context.Context, f db.TransactionFilter, limit, offset int) ([]ledgermodels.PairTransaction, int64, error) {
	var conds []string
	var args []any
	if f.WithAccount {
		conds = append(conds, "account_address <> ''")
	}
	if f.KeyName != "" {
		args = append(args, f.KeyName)
		conds = append(conds, fmt.Sprintf("key_name = $%d", len(args)))
	}
	conds, args = rangeClause(f.Range, conds, args)

	var total int64
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM pair_transactions`+where(conds), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM pair_transactions%s
		ORDER BY event_time DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, pairTransactionColumns, where(conds), len(args)-1, len(args))
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.PairTransaction])
	if err != nil {
		return nil, 0, fmt.Errorf("scan transactions: %w", err)
	}
	return txs, total, nil
}

func (db *DB) CountTransactions(ctx context.Context, r db.TimeRange) (int64, error) {
	conds, args := rangeClause(r, nil, nil)
	var total int64
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM pair_transactions`+where(conds), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return total, nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
