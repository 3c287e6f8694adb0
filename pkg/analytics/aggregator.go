package analytics

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/oracle"
	"github.com/canopy-network/ammx/pkg/registry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the ledger surface the aggregator reads and the snapshot table it appends to.
type Store interface {
	db.TransactionStore
	db.SnapshotStore
}

// Aggregator computes every analytics view from the ledger, pricing amounts with
// the tokens of the current pair registry. Rows of pairs missing from the registry are ignored.
type Aggregator struct {
	Store    Store
	Registry *registry.Registry
	Oracle   oracle.Oracle
	Logger   *zap.Logger
	Now      func() time.Time
}

// TVLsByDay returns the running TVL for every day from the first to the last active
// day. Days before since are left out of the result but still count toward the total.
func (a *Aggregator) TVLsByDay(ctx context.Context, since time.Time) ([]DayTVL, error) {
	rows, err := a.Store.DailyAmounts(ctx, db.LedgerKeyNames)
	if err != nil {
		return nil, fmt.Errorf("daily amounts: %w", err)
	}
	out := []DayTVL{}
	var tvl float64
	err = walkDays(rows, func(day time.Time, items []ledger.DailyAmountRow) error {
		for _, row := range items {
			pair, ok := a.Registry.Pair(row.PairAddress)
			if !ok {
				continue
			}
			delta, err := a.tvlDelta(ctx, pair, row)
			if err != nil {
				return err
			}
			tvl += delta
		}
		if !since.IsZero() && day.Before(since) {
			return nil
		}
		out = append(out, DayTVL{Date: day.Format(dayLayout), TVL: tvl})
		return nil
	})
	return out, err
}

// VolumesByDay returns the swap volume of every day from the first to the last day with swaps.
func (a *Aggregator) VolumesByDay(ctx context.Context, since time.Time) ([]DayVolume, error) {
	rows, err := a.Store.DailyAmounts(ctx, []string{ledger.KeySwap})
	if err != nil {
		return nil, fmt.Errorf("daily amounts: %w", err)
	}
	out := []DayVolume{}
	err = walkDays(rows, func(day time.Time, items []ledger.DailyAmountRow) error {
		var volume float64
		for _, row := range items {
			pair, ok := a.Registry.Pair(row.PairAddress)
			if !ok {
				continue
			}
			v, err := a.swapVolume(ctx, pair, row.SwapReverse, parseAmount(row.SumAmount0), parseAmount(row.SumAmount1))
			if err != nil {
				return err
			}
			volume += v
		}
		if !since.IsZero() && day.Before(since) {
			return nil
		}
		out = append(out, DayVolume{Date: day.Format(dayLayout), Volume: volume})
		return nil
	})
	return out, err
}

// walkDays calls fn for every calendar day between the first and the last row's day,
// including days without rows. rows must be ordered by day.
func walkDays(rows []ledger.DailyAmountRow, fn func(day time.Time, items []ledger.DailyAmountRow) error) error {
	if len(rows) == 0 {
		return nil
	}
	byDay := make(map[string][]ledger.DailyAmountRow)
	for _, row := range rows {
		byDay[row.Day] = append(byDay[row.Day], row)
	}
	first, err := time.Parse(dayLayout, rows[0].Day)
	if err != nil {
		return fmt.Errorf("parse day %q: %w", rows[0].Day, err)
	}
	last, err := time.Parse(dayLayout, rows[len(rows)-1].Day)
	if err != nil {
		return fmt.Errorf("parse day %q: %w", rows[len(rows)-1].Day, err)
	}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := fn(day, byDay[day.Format(dayLayout)]); err != nil {
			return err
		}
	}
	return nil
}

// tvlDelta is the change in pool value caused by a group of rows. A swap adds what
// came in and removes what went out; mints add and burns remove both sides.
func (a *Aggregator) tvlDelta(ctx context.Context, pair registry.Pair, row ledger.DailyAmountRow) (float64, error) {
	a0, a1 := parseAmount(row.SumAmount0), parseAmount(row.SumAmount1)
	switch row.KeyName {
	case ledger.KeySwap:
		if row.SwapReverse == 0 {
			return a.usd(ctx, pair, a0, a1.Neg())
		}
		return a.usd(ctx, pair, a0.Neg(), a1)
	case ledger.KeyMint:
		return a.usd(ctx, pair, a0, a1)
	case ledger.KeyBurn:
		v, err := a.usd(ctx, pair, a0, a1)
		return -v, err
	}
	return 0, nil
}

// swapVolume prices the input side of swaps in one direction.
func (a *Aggregator) swapVolume(ctx context.Context, pair registry.Pair, reverse uint8, a0, a1 decimal.Decimal) (float64, error) {
	switch reverse {
	case 0:
		return a.usd(ctx, pair, a0, decimal.Zero)
	case 1:
		return a.usd(ctx, pair, decimal.Zero, a1)
	}
	return 0, nil
}

// usd prices raw amounts of the pair's two tokens.
func (a *Aggregator) usd(ctx context.Context, pair registry.Pair, amount0, amount1 decimal.Decimal) (float64, error) {
	var total float64
	if !amount0.IsZero() {
		v, err := a.Oracle.USDValue(ctx, amount0, pair.Token0.Decimals, pair.Token0.Symbol)
		if err != nil {
			return 0, err
		}
		total += v
	}
	if !amount1.IsZero() {
		v, err := a.Oracle.USDValue(ctx, amount1, pair.Token1.Decimals, pair.Token1.Symbol)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// Transactions returns a page of resolved ledger rows, newest first.
func (a *Aggregator) Transactions(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
	page := normalizePage(req.Page)
	filter := db.TransactionFilter{
		Range:       db.TimeRange{Start: req.StartTime, End: req.EndTime},
		KeyName:     req.KeyName,
		WithAccount: true,
	}
	rows, total, err := a.Store.ListTransactions(ctx, filter, TransactionsLimit, TransactionsLimit*(page-1))
	if err != nil {
		return TransactionsPage{}, fmt.Errorf("list transactions: %w", err)
	}

	views := make([]TransactionView, 0, len(rows))
	for _, row := range rows {
		view := TransactionView{PairTransaction: row}
		if pair, ok := a.Registry.Pair(row.PairAddress); ok {
			token0, token1 := pair.Token0, pair.Token1
			view.Token0 = &token0
			view.Token1 = &token1
			view.Amount0Human = FormatUnits(row.Amount0, token0.Decimals)
			view.Amount1Human = FormatUnits(row.Amount1, token1.Decimals)

			if fee := parseAmount(row.Fee); fee.IsPositive() {
				feeToken := token0
				if row.SwapReverse != 0 {
					feeToken = token1
				}
				v, err := a.Oracle.USDValue(ctx, fee, feeToken.Decimals, feeToken.Symbol)
				if err != nil {
					return TransactionsPage{}, err
				}
				view.FeeUSD = &v
			}
		}
		views = append(views, view)
	}
	return TransactionsPage{Transactions: views, Total: total, Limit: TransactionsLimit, Page: page}, nil
}

// TransactionsSummary totals the swap fees collected per token and counts all rows in range.
func (a *Aggregator) TransactionsSummary(ctx context.Context, r db.TimeRange) (TransactionsSummary, error) {
	fees, err := a.Store.PairSwapFees(ctx, r)
	if err != nil {
		return TransactionsSummary{}, fmt.Errorf("swap fees: %w", err)
	}

	profits := []Profit{}
	sums := map[string]*big.Int{}
	for _, row := range fees {
		pair, ok := a.Registry.Pair(row.PairAddress)
		if !ok {
			continue
		}
		token := pair.Token0
		if row.SwapReverse != 0 {
			token = pair.Token1
		}
		amount, ok := new(big.Int).SetString(row.SumFee, 10)
		if !ok {
			amount = new(big.Int)
		}
		if sum, seen := sums[token.Address]; seen {
			sum.Add(sum, amount)
			continue
		}
		sums[token.Address] = amount
		profits = append(profits, Profit{
			Address:  token.Address,
			Name:     token.Name,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
		})
	}
	for i := range profits {
		amount := sums[profits[i].Address].String()
		profits[i].Amount = amount
		profits[i].AmountHuman = FormatUnits(amount, profits[i].Decimals)
	}

	total, err := a.Store.CountTransactions(ctx, r)
	if err != nil {
		return TransactionsSummary{}, fmt.Errorf("count transactions: %w", err)
	}
	return TransactionsSummary{Total: total, Profits: profits}, nil
}

// Pairs lists registry pairs with recent volume and fee figures. Pairs with less than
// one cent of liquidity are left out.
func (a *Aggregator) Pairs(ctx context.Context, req PairsRequest) (PairsPage, error) {
	page := normalizePage(req.Page)
	now := a.now().Unix()
	day := db.TimeRange{Start: now - secondsPerDay}
	week := db.TimeRange{Start: now - 7*secondsPerDay}

	var (
		volumes24h, volumes7d []ledger.PairVolumeRow
		fees24h, feesTotal    []ledger.PairFeeRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { volumes24h, err = a.Store.PairVolumes(gctx, day); return })
	g.Go(func() (err error) { volumes7d, err = a.Store.PairVolumes(gctx, week); return })
	g.Go(func() (err error) { fees24h, err = a.Store.PairSwapFees(gctx, day); return })
	g.Go(func() (err error) {
		feesTotal, err = a.Store.PairSwapFees(gctx, db.TimeRange{Start: req.StartTime, End: req.EndTime})
		return
	})
	if err := g.Wait(); err != nil {
		return PairsPage{}, fmt.Errorf("pair figures: %w", err)
	}

	listed := []PairView{}
	for _, pair := range a.Registry.Pairs() {
		if pair.Liquidity < minListedLiquidity {
			continue
		}
		view := PairView{Pair: pair}
		var err error
		if view.Volume24h, err = a.pairVolume(ctx, pair, volumes24h); err != nil {
			return PairsPage{}, err
		}
		if view.Volume7d, err = a.pairVolume(ctx, pair, volumes7d); err != nil {
			return PairsPage{}, err
		}
		if view.Fees24h, err = a.pairFees(ctx, pair, fees24h); err != nil {
			return PairsPage{}, err
		}
		if view.FeesTotal, err = a.pairFees(ctx, pair, feesTotal); err != nil {
			return PairsPage{}, err
		}
		listed = append(listed, view)
	}

	total := len(listed)
	from := (page - 1) * PairsLimit
	if from > total {
		from = total
	}
	to := from + PairsLimit
	if to > total {
		to = total
	}
	return PairsPage{Pairs: listed[from:to], Total: total, Limit: PairsLimit, Page: page}, nil
}

func (a *Aggregator) pairVolume(ctx context.Context, pair registry.Pair, rows []ledger.PairVolumeRow) (float64, error) {
	var total float64
	for _, row := range rows {
		if row.PairAddress != pair.PairAddress {
			continue
		}
		v, err := a.swapVolume(ctx, pair, row.SwapReverse, parseAmount(row.SumAmount0), parseAmount(row.SumAmount1))
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// pairFees prices fees taken in token0 (reverse 0) and token1 (reverse 1).
func (a *Aggregator) pairFees(ctx context.Context, pair registry.Pair, rows []ledger.PairFeeRow) (float64, error) {
	fee0, fee1 := decimal.Zero, decimal.Zero
	for _, row := range rows {
		if row.PairAddress != pair.PairAddress {
			continue
		}
		switch row.SwapReverse {
		case 0:
			fee0 = fee0.Add(parseAmount(row.SumFee))
		case 1:
			fee1 = fee1.Add(parseAmount(row.SumFee))
		}
	}
	return a.usd(ctx, pair, fee0, fee1)
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Aggregator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
