package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/canopy-network/ammx/pkg/db"
	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
)

const pairTransactionColumns = `id, event_id, pair_address, account_address, transaction_hash, key_name,
	toString(amount0) AS amount0, toString(amount1) AS amount1, swap_reverse, toString(fee) AS fee, event_time, created_at`

func (db *DB) initPairTransactions(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS pair_transactions %s (
			id Int64,
			event_id String,
			pair_address String,
			account_address String,
			transaction_hash String,
			key_name LowCardinality(String),
			amount0 UInt256,
			amount1 UInt256,
			swap_reverse UInt8,
			fee UInt256,
			event_time DateTime('UTC'),
			created_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = %s
		ORDER BY event_id
	`, db.OnCluster(), db.Engine("ReplacingMergeTree", ""))
	return db.Exec(ctx, query)
}

func (db *DB) InsertPairTransaction(ctx context.Context, tx *ledgermodels.PairTransaction) (bool, error) {
	var count uint64
	if err := db.QueryRow(ctx, `SELECT count() FROM pair_transactions FINAL WHERE event_id = ?`, tx.EventID).Scan(&count); err != nil {
		return false, fmt.Errorf("check pair transaction %s: %w", tx.EventID, err)
	}
	if count > 0 {
		return false, nil
	}

	amounts := make([]*big.Int, 3)
	for i, v := range []string{tx.Amount0, tx.Amount1, tx.Fee} {
		n, err := parseAmount(v)
		if err != nil {
			return false, fmt.Errorf("pair transaction %s: %w", tx.EventID, err)
		}
		amounts[i] = n
	}

	batch, err := db.PrepareBatch(ctx, `INSERT INTO pair_transactions (id, event_id, pair_address, account_address, transaction_hash, key_name, amount0, amount1, swap_reverse, fee, event_time)`)
	if err != nil {
		return false, fmt.Errorf("prepare pair transaction insert: %w", err)
	}
	if err := batch.Append(time.Now().UnixNano(), tx.EventID, tx.PairAddress, tx.AccountAddress, tx.TransactionHash,
		tx.KeyName, amounts[0], amounts[1], tx.SwapReverse, amounts[2], tx.EventTime.UTC()); err != nil {
		_ = batch.Abort()
		return false, fmt.Errorf("append pair transaction %s: %w", tx.EventID, err)
	}
	if err := batch.Send(); err != nil {
		return false, fmt.Errorf("insert pair transaction %s: %w", tx.EventID, err)
	}
	return true, nil
}

func (db *DB) DailyAmounts(ctx context.Context, keyNames []string) ([]ledgermodels.DailyAmountRow, error) {
	var rows []ledgermodels.DailyAmountRow
	err := db.Select(ctx, &rows, `
		SELECT toString(toDate(event_time)) AS day,
			pair_address, key_name, swap_reverse,
			toString(sum(amount0)) AS sum_amount0,
			toString(sum(amount1)) AS sum_amount1
		FROM pair_transactions FINAL
		WHERE has(?, key_name)
		GROUP BY day, pair_address, key_name, swap_reverse
		ORDER BY day ASC
	`, keyNames)
	if err != nil {
		return nil, fmt.Errorf("daily amounts: %w", err)
	}
	return rows, nil
}

func (db *DB) PairVolumes(ctx context.Context, r db.TimeRange) ([]ledgermodels.PairVolumeRow, error) {
	conds, args := rangeClause(r, []string{"key_name = 'Swap'"}, nil)
	var rows []ledgermodels.PairVolumeRow
	err := db.Select(ctx, &rows, `
		SELECT pair_address, swap_reverse,
			toString(sum(amount0)) AS sum_amount0,
			toString(sum(amount1)) AS sum_amount1
		FROM pair_transactions FINAL`+where(conds)+`
		GROUP BY pair_address, swap_reverse
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("pair volumes: %w", err)
	}
	return rows, nil
}

func (db *DB) PairSwapFees(ctx context.Context, r db.TimeRange) ([]ledgermodels.PairFeeRow, error) {
	conds, args := rangeClause(r, []string{"key_name = 'Swap'"}, nil)
	var rows []ledgermodels.PairFeeRow
	err := db.Select(ctx, &rows, `
		SELECT pair_address, swap_reverse, toString(sum(fee)) AS sum_fee
		FROM pair_transactions FINAL`+where(conds)+`
		GROUP BY pair_address, swap_reverse
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("pair swap fees: %w", err)
	}
	return rows, nil
}

func (db *DB) AccountAmounts(ctx context.Context, keyNames []string) ([]ledgermodels.AccountAmountRow, error) {
	var rows []ledgermodels.AccountAmountRow
	err := db.Select(ctx, &rows, `
		SELECT account_address, pair_address, key_name,
			toString(sum(amount0)) AS sum_amount0,
			toString(sum(amount1)) AS sum_amount1
		FROM pair_transactions FINAL
		WHERE has(?, key_name) AND account_address != ''
		GROUP BY account_address, pair_address, key_name
	`, keyNames)
	if err != nil {
		return nil, fmt.Errorf("account amounts: %w", err)
	}
	return rows, nil
}

func (db *DB) FirstEventTimes(ctx context.Context, keyName string) (map[string]time.Time, error) {
	var rows []struct {
		AccountAddress string    `ch:"account_address"`
		FirstTime      time.Time `ch:"first_time"`
	}
	err := db.Select(ctx, &rows, `
		SELECT account_address, min(event_time) AS first_time
		FROM pair_transactions FINAL
		WHERE key_name = ? AND account_address != ''
		GROUP BY account_address
	`, keyName)
	if err != nil {
		return nil, fmt.Errorf("first event times: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.AccountAddress] = r.FirstTime
	}
	return out, nil
}

func (db *DB) ListTransactions(ctx context.Context, f db.TransactionFilter, limit, offset int) ([]ledgermodels.PairTransaction, int64, error) {
	var conds []string
	var args []any
	if f.WithAccount {
		conds = append(conds, "account_address != ''")
	}
	if f.KeyName != "" {
		conds = append(conds, "key_name = ?")
		args = append(args, f.KeyName)
	}
	conds, args = rangeClause(f.Range, conds, args)

	var total uint64
	if err := db.QueryRow(ctx, `SELECT count() FROM pair_transactions FINAL`+where(conds), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var txs []ledgermodels.PairTransaction
	query := `SELECT ` + pairTransactionColumns + ` FROM pair_transactions FINAL` + where(conds) +
		` ORDER BY event_time DESC, id DESC LIMIT ? OFFSET ?`
	if err := db.Select(ctx, &txs, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, int64(total), nil
}

func (db *DB) CountTransactions(ctx context.Context, r db.TimeRange) (int64, error) {
	conds, args := rangeClause(r, nil, nil)
	var total uint64
	if err := db.QueryRow(ctx, `SELECT count() FROM pair_transactions FINAL`+where(conds), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int64(total), nil
}

func parseAmount(v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", v)
	}
	return n, nil
}
