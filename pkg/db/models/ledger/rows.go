package ledger

// Aggregation rows. Sums are base 10 integer strings so they never lose precision.

// DailyAmountRow sums one (day, pair, kind, direction) group. Day is YYYY-MM-DD in UTC.
type DailyAmountRow struct {
	Day         string `db:"day" ch:"day"`
	PairAddress string `db:"pair_address" ch:"pair_address"`
	KeyName     string `db:"key_name" ch:"key_name"`
	SwapReverse uint8  `db:"swap_reverse" ch:"swap_reverse"`
	SumAmount0  string `db:"sum_amount0" ch:"sum_amount0"`
	SumAmount1  string `db:"sum_amount1" ch:"sum_amount1"`
}

// PairVolumeRow sums swap amounts of a pair in one direction.
type PairVolumeRow struct {
	PairAddress string `db:"pair_address" ch:"pair_address"`
	SwapReverse uint8  `db:"swap_reverse" ch:"swap_reverse"`
	SumAmount0  string `db:"sum_amount0" ch:"sum_amount0"`
	SumAmount1  string `db:"sum_amount1" ch:"sum_amount1"`
}

// PairFeeRow sums swap fees of a pair in one direction.
type PairFeeRow struct {
	PairAddress string `db:"pair_address" ch:"pair_address"`
	SwapReverse uint8  `db:"swap_reverse" ch:"swap_reverse"`
	SumFee      string `db:"sum_fee" ch:"sum_fee"`
}

// AccountAmountRow sums amounts per (account, pair, kind).
type AccountAmountRow struct {
	AccountAddress string `db:"account_address" ch:"account_address"`
	PairAddress    string `db:"pair_address" ch:"pair_address"`
	KeyName        string `db:"key_name" ch:"key_name"`
	SumAmount0     string `db:"sum_amount0" ch:"sum_amount0"`
	SumAmount1     string `db:"sum_amount1" ch:"sum_amount1"`
}
