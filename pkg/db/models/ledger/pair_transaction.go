package ledger

import "time"

const PairTransactionsTableName = "pair_transactions"

// PairTransaction is the decoded ledger row of a Mint, Burn or Swap.
// Amounts are raw token units in base 10. For swaps, SwapReverse 0 means token0 was sold
// (Amount0 in, Amount1 out, Fee in token0) and 1 the opposite direction.
type PairTransaction struct {
	ID              int64     `db:"id" ch:"id" json:"id"`
	EventID         string    `db:"event_id" ch:"event_id" json:"event_id"`
	PairAddress     string    `db:"pair_address" ch:"pair_address" json:"pair_address"`
	AccountAddress  string    `db:"account_address" ch:"account_address" json:"account_address"`
	TransactionHash string    `db:"transaction_hash" ch:"transaction_hash" json:"transaction_hash"`
	KeyName         string    `db:"key_name" ch:"key_name" json:"key_name"`
	Amount0         string    `db:"amount0" ch:"amount0" json:"amount0"`
	Amount1         string    `db:"amount1" ch:"amount1" json:"amount1"`
	SwapReverse     uint8     `db:"swap_reverse" ch:"swap_reverse" json:"swap_reverse"`
	Fee             string    `db:"fee" ch:"fee" json:"fee"`
	EventTime       time.Time `db:"event_time" ch:"event_time" json:"event_time"`
	CreatedAt       time.Time `db:"created_at" ch:"created_at" json:"created_at"`
}
