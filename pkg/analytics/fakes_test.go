package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/registry"
)

type listCall struct {
	filter        db.TransactionFilter
	limit, offset int
}

type fakeStore struct {
	mu sync.Mutex

	daily      []ledger.DailyAmountRow
	volumes    map[db.TimeRange][]ledger.PairVolumeRow
	fees       map[db.TimeRange][]ledger.PairFeeRow
	accounts   []ledger.AccountAmountRow
	firstMints map[string]time.Time
	txs        []ledger.PairTransaction
	txTotal    int64
	count      int64
	snapshots  []ledger.Snapshot
	err        error

	listCalls []listCall
}

func keep(keyNames []string, key string) bool {
	for _, k := range keyNames {
		if k == key {
			return true
		}
	}
	return false
}

func (s *fakeStore) InsertPairTransaction(context.Context, *ledger.PairTransaction) (bool, error) {
	return true, nil
}

func (s *fakeStore) DailyAmounts(_ context.Context, keyNames []string) ([]ledger.DailyAmountRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []ledger.DailyAmountRow
	for _, r := range s.daily {
		if keep(keyNames, r.KeyName) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) PairVolumes(_ context.Context, r db.TimeRange) ([]ledger.PairVolumeRow, error) {
	return s.volumes[r], s.err
}

func (s *fakeStore) PairSwapFees(_ context.Context, r db.TimeRange) ([]ledger.PairFeeRow, error) {
	return s.fees[r], s.err
}

func (s *fakeStore) AccountAmounts(_ context.Context, keyNames []string) ([]ledger.AccountAmountRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []ledger.AccountAmountRow
	for _, r := range s.accounts {
		if keep(keyNames, r.KeyName) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) FirstEventTimes(context.Context, string) (map[string]time.Time, error) {
	return s.firstMints, s.err
}

func (s *fakeStore) ListTransactions(_ context.Context, f db.TransactionFilter, limit, offset int) ([]ledger.PairTransaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, listCall{filter: f, limit: limit, offset: offset})
	return s.txs, s.txTotal, s.err
}

func (s *fakeStore) CountTransactions(context.Context, db.TimeRange) (int64, error) {
	return s.count, s.err
}

func (s *fakeStore) InsertSnapshot(_ context.Context, entries []ledger.SnapshotEntry) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, ledger.Snapshot{
		ID:        int64(len(s.snapshots) + 1),
		Content:   entries,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *fakeStore) ListSnapshots(context.Context) ([]ledger.Snapshot, error) {
	return s.snapshots, s.err
}

var (
	eth  = registry.Token{Address: "0xe", Name: "Ether", Symbol: "ETH", Decimals: 18}
	usdc = registry.Token{Address: "0xu", Name: "USD Coin", Symbol: "USDC", Decimals: 6}
)

func testRegistry() *registry.Registry {
	r := registry.New()
	r.Replace([]registry.Pair{
		{Token0: eth, Token1: usdc, PairAddress: "0xp", Decimals: 18, Liquidity: 5000},
		{Token0: eth, Token1: usdc, PairAddress: "0xdust", Decimals: 18, Liquidity: 0.001},
	})
	return r
}
