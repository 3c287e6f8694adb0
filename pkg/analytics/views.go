package analytics

import (
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/registry"
)

// Page sizes of the paginated views and loyalty score thresholds.
const (
	TransactionsLimit  = 10
	PairsLimit         = 100
	AccountsLimit      = 100
	SnapshotPageLimit  = 25
	minListedLiquidity = 0.01
	scoreMinAgeDays    = 30
	scoreMinTVL        = 20
	scoreExponent      = 1.25
	scoreAgeOffsetDays = 29
	secondsPerDay      = 24 * 60 * 60
	dayLayout          = "2006-01-02"
)

// DayTVL is the running total value locked at the end of a UTC day.
type DayTVL struct {
	Date string  `json:"date"`
	TVL  float64 `json:"tvl"`
}

// DayVolume is the swap volume of a UTC day.
type DayVolume struct {
	Date   string  `json:"date"`
	Volume float64 `json:"volume"`
}

// TransactionsRequest selects a page of ledger rows. Times are unix seconds; 0 leaves a bound open.
type TransactionsRequest struct {
	StartTime int64
	EndTime   int64
	KeyName   string
	Page      int
}

// TransactionView is a ledger row annotated for display.
type TransactionView struct {
	ledger.PairTransaction
	Token0       *registry.Token `json:"token0,omitempty"`
	Token1       *registry.Token `json:"token1,omitempty"`
	Amount0Human string          `json:"amount0_human"`
	Amount1Human string          `json:"amount1_human"`
	FeeUSD       *float64        `json:"fee_usd,omitempty"`
}

type TransactionsPage struct {
	Transactions []TransactionView `json:"transactions"`
	Total        int64             `json:"total"`
	Limit        int               `json:"limit"`
	Page         int               `json:"page"`
}

// Profit is the swap fee collected in one token.
type Profit struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int32  `json:"decimals"`
	Amount      string `json:"amount"`
	AmountHuman string `json:"amountHuman"`
}

type TransactionsSummary struct {
	Total   int64    `json:"total"`
	Profits []Profit `json:"profits"`
}

// PairsRequest bounds the total fee column; the 24h and 7d columns are always relative to now.
type PairsRequest struct {
	StartTime int64
	EndTime   int64
	Page      int
}

type PairView struct {
	registry.Pair
	Volume24h float64 `json:"volume24h"`
	Volume7d  float64 `json:"volume7d"`
	Fees24h   float64 `json:"fees24h"`
	FeesTotal float64 `json:"feesTotal"`
}

type PairsPage struct {
	Pairs []PairView `json:"pairs"`
	Total int        `json:"total"`
	Limit int        `json:"limit"`
	Page  int        `json:"page"`
}

// AccountTVL is the liquidity an account provides, per pair and in total.
// Since is the unix time of its first Mint.
type AccountTVL struct {
	AccountAddress string             `json:"account_address"`
	TvlTotal       float64            `json:"tvlTotal"`
	TvlPairs       map[string]float64 `json:"tvlPairs"`
	Score          float64            `json:"score"`
	Since          int64              `json:"since"`
}

// AccountVolume is the swap volume of an account, per pair and in total.
type AccountVolume struct {
	AccountAddress string             `json:"account_address"`
	VolumeTotal    float64            `json:"volumeTotal"`
	VolumePairs    map[string]float64 `json:"volumePairs"`
}

// Rank locates one entry of a ranking. Rank starts at 1.
type Rank[T any] struct {
	Rank int `json:"rank"`
	Info T   `json:"info"`
}

type SnapshotRank struct {
	Rank       int                  `json:"rank"`
	TopPercent float64              `json:"topPercent"`
	Info       ledger.SnapshotEntry `json:"info"`
}

type SnapshotPage struct {
	Accounts []ledger.SnapshotEntry `json:"accounts"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Page     int                    `json:"page"`
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
