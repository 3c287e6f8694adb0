package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/metrics"
	"go.uber.org/zap"
)

// TVLsByAccount returns the count accounts providing the most liquidity.
func (a *Aggregator) TVLsByAccount(ctx context.Context, count int) ([]AccountTVL, error) {
	ranking, err := a.tvlRanking(ctx)
	if err != nil {
		return nil, err
	}
	return truncate(ranking, count), nil
}

// RankTVLByAccount returns the position of account in the liquidity ranking, or nil.
func (a *Aggregator) RankTVLByAccount(ctx context.Context, account string) (*Rank[AccountTVL], error) {
	ranking, err := a.tvlRanking(ctx)
	if err != nil {
		return nil, err
	}
	for i, item := range ranking {
		if item.AccountAddress == account {
			return &Rank[AccountTVL]{Rank: i + 1, Info: item}, nil
		}
	}
	return nil, nil
}

// VolumesByAccount returns the count accounts with the most swap volume.
func (a *Aggregator) VolumesByAccount(ctx context.Context, count int) ([]AccountVolume, error) {
	ranking, err := a.volumeRanking(ctx)
	if err != nil {
		return nil, err
	}
	return truncate(ranking, count), nil
}

// RankVolumeByAccount returns the position of account in the volume ranking, or nil.
func (a *Aggregator) RankVolumeByAccount(ctx context.Context, account string) (*Rank[AccountVolume], error) {
	ranking, err := a.volumeRanking(ctx)
	if err != nil {
		return nil, err
	}
	for i, item := range ranking {
		if item.AccountAddress == account {
			return &Rank[AccountVolume]{Rank: i + 1, Info: item}, nil
		}
	}
	return nil, nil
}

func (a *Aggregator) tvlRanking(ctx context.Context) ([]AccountTVL, error) {
	rows, err := a.Store.AccountAmounts(ctx, []string{ledger.KeyMint, ledger.KeyBurn})
	if err != nil {
		return nil, fmt.Errorf("account amounts: %w", err)
	}
	if len(rows) == 0 {
		return []AccountTVL{}, nil
	}
	firstMints, err := a.Store.FirstEventTimes(ctx, ledger.KeyMint)
	if err != nil {
		return nil, fmt.Errorf("first mints: %w", err)
	}

	byAccount := map[string]map[string]float64{}
	for _, row := range rows {
		pair, ok := a.Registry.Pair(row.PairAddress)
		if !ok {
			continue
		}
		v, err := a.usd(ctx, pair, parseAmount(row.SumAmount0), parseAmount(row.SumAmount1))
		if err != nil {
			return nil, err
		}
		if row.KeyName == ledger.KeyBurn {
			v = -v
		}
		pairs := byAccount[row.AccountAddress]
		if pairs == nil {
			pairs = map[string]float64{}
			byAccount[row.AccountAddress] = pairs
		}
		pairs[row.PairAddress] += v
	}

	now := a.now()
	ranking := make([]AccountTVL, 0, len(byAccount))
	for account, pairs := range byAccount {
		item := AccountTVL{AccountAddress: account, TvlPairs: pairs}
		for _, v := range pairs {
			item.TvlTotal += v
		}
		if first, ok := firstMints[account]; ok {
			item.Since = first.Unix()
			item.Score = LoyaltyScore(item.TvlTotal, now.Sub(first))
		}
		ranking = append(ranking, item)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].TvlTotal != ranking[j].TvlTotal {
			return ranking[i].TvlTotal > ranking[j].TvlTotal
		}
		return ranking[i].AccountAddress < ranking[j].AccountAddress
	})
	return ranking, nil
}

func (a *Aggregator) volumeRanking(ctx context.Context) ([]AccountVolume, error) {
	rows, err := a.Store.AccountAmounts(ctx, []string{ledger.KeySwap})
	if err != nil {
		return nil, fmt.Errorf("account amounts: %w", err)
	}

	byAccount := map[string]map[string]float64{}
	for _, row := range rows {
		pair, ok := a.Registry.Pair(row.PairAddress)
		if !ok {
			continue
		}
		v, err := a.usd(ctx, pair, parseAmount(row.SumAmount0), parseAmount(row.SumAmount1))
		if err != nil {
			return nil, err
		}
		pairs := byAccount[row.AccountAddress]
		if pairs == nil {
			pairs = map[string]float64{}
			byAccount[row.AccountAddress] = pairs
		}
		pairs[row.PairAddress] += v
	}

	ranking := make([]AccountVolume, 0, len(byAccount))
	for account, pairs := range byAccount {
		item := AccountVolume{AccountAddress: account, VolumePairs: pairs}
		for _, v := range pairs {
			item.VolumeTotal += v
		}
		ranking = append(ranking, item)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].VolumeTotal != ranking[j].VolumeTotal {
			return ranking[i].VolumeTotal > ranking[j].VolumeTotal
		}
		return ranking[i].AccountAddress < ranking[j].AccountAddress
	})
	return ranking, nil
}

// LoyaltyScore rewards liquidity held for more than 29 days:
// tvl * (ageDays-29)^1.25 rounded to 4 places, or 0 below 30 days or 20 USD.
func LoyaltyScore(tvl float64, age time.Duration) float64 {
	ageDays := age.Hours() / 24
	if ageDays < scoreMinAgeDays || tvl < scoreMinTVL {
		return 0
	}
	return round4(tvl * math.Pow(ageDays-scoreAgeOffsetDays, scoreExponent))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func truncate[T any](items []T, count int) []T {
	if count <= 0 {
		count = AccountsLimit
	}
	if len(items) > count {
		return items[:count]
	}
	return items
}

// TakeSnapshot stores the whole liquidity ranking as a new snapshot.
func (a *Aggregator) TakeSnapshot(ctx context.Context) ([]ledger.SnapshotEntry, error) {
	ranking, err := a.tvlRanking(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.SnapshotEntry, 0, len(ranking))
	for _, item := range ranking {
		entries = append(entries, ledger.SnapshotEntry{
			AccountAddress: item.AccountAddress,
			TvlTotal:       item.TvlTotal,
			Score:          item.Score,
		})
	}
	if err := a.Store.InsertSnapshot(ctx, entries); err != nil {
		metrics.Snapshots.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	metrics.Snapshots.WithLabelValues("ok").Inc()
	a.logger().Info("Snapshot taken", zap.Int("accounts", len(entries)))
	return entries, nil
}

// SnapshotTVLsByAccount merges all snapshots oldest first: scores add up and the
// latest TVL wins. The result is ordered by score, highest first.
func (a *Aggregator) SnapshotTVLsByAccount(ctx context.Context) ([]ledger.SnapshotEntry, error) {
	snapshots, err := a.Store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return MergeSnapshots(snapshots), nil
}

// MergeSnapshots replays snapshots in the given order.
func MergeSnapshots(snapshots []ledger.Snapshot) []ledger.SnapshotEntry {
	merged := map[string]*ledger.SnapshotEntry{}
	for _, snap := range snapshots {
		for _, item := range snap.Content {
			acc, ok := merged[item.AccountAddress]
			if !ok {
				entry := item
				merged[item.AccountAddress] = &entry
				continue
			}
			acc.Score += item.Score
			acc.TvlTotal = item.TvlTotal
		}
	}

	out := make([]ledger.SnapshotEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AccountAddress < out[j].AccountAddress
	})
	return out
}

// SnapshotAccounts pages the merged snapshot ranking.
func (a *Aggregator) SnapshotAccounts(ctx context.Context, page int) (SnapshotPage, error) {
	page = normalizePage(page)
	merged, err := a.SnapshotTVLsByAccount(ctx)
	if err != nil {
		return SnapshotPage{}, err
	}
	total := len(merged)
	from := (page - 1) * SnapshotPageLimit
	if from > total {
		from = total
	}
	to := from + SnapshotPageLimit
	if to > total {
		to = total
	}
	return SnapshotPage{Accounts: merged[from:to], Total: total, Limit: SnapshotPageLimit, Page: page}, nil
}

// RankSnapshotByAccount returns the account's position in the merged ranking and the
// share of scoring accounts ranked at or above it, or nil when it never appeared.
func (a *Aggregator) RankSnapshotByAccount(ctx context.Context, account string) (*SnapshotRank, error) {
	merged, err := a.SnapshotTVLsByAccount(ctx)
	if err != nil {
		return nil, err
	}
	scoring := 0
	for _, e := range merged {
		if e.Score > 0 {
			scoring++
		}
	}
	for i, e := range merged {
		if e.AccountAddress != account {
			continue
		}
		rank := i + 1
		top := 1.0
		if scoring > 0 {
			top = float64(rank) / float64(scoring)
		}
		return &SnapshotRank{Rank: rank, TopPercent: top, Info: e}, nil
	}
	return nil, nil
}
