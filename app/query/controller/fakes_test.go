package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/ammx/app/query/types"
	"github.com/canopy-network/ammx/pkg/analytics"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/oracle"
	"github.com/canopy-network/ammx/pkg/registry"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// ledgerStub is an in-memory db.LedgerStore serving canned aggregation rows.
type ledgerStub struct {
	mu sync.Mutex

	accounts   []ledger.AccountAmountRow
	firstMints map[string]time.Time
	txs        []ledger.PairTransaction
	txTotal    int64
	count      int64
	snapshots  []ledger.Snapshot
	inserted   [][]ledger.SnapshotEntry
	err        error
	pingErr    error
}

var _ db.LedgerStore = (*ledgerStub)(nil)

func (s *ledgerStub) InsertPairEvent(context.Context, *ledger.PairEvent) (bool, error) {
	return true, nil
}

func (s *ledgerStub) HasPairEvent(context.Context, string) (bool, error) { return false, nil }

func (s *ledgerStub) LatestCursor(context.Context, string) (string, error) { return "", nil }

func (s *ledgerStub) PendingEvents(context.Context, []string, int) ([]ledger.PairEvent, error) {
	return nil, nil
}

func (s *ledgerStub) SkipEvents(context.Context, []string) error { return nil }

func (s *ledgerStub) InsertPairTransaction(context.Context, *ledger.PairTransaction) (bool, error) {
	return true, nil
}

func (s *ledgerStub) DailyAmounts(context.Context, []string) ([]ledger.DailyAmountRow, error) {
	return nil, s.err
}

func (s *ledgerStub) PairVolumes(context.Context, db.TimeRange) ([]ledger.PairVolumeRow, error) {
	return nil, s.err
}

func (s *ledgerStub) PairSwapFees(context.Context, db.TimeRange) ([]ledger.PairFeeRow, error) {
	return nil, s.err
}

func (s *ledgerStub) AccountAmounts(_ context.Context, keyNames []string) ([]ledger.AccountAmountRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []ledger.AccountAmountRow
	for _, row := range s.accounts {
		for _, k := range keyNames {
			if row.KeyName == k {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (s *ledgerStub) FirstEventTimes(context.Context, string) (map[string]time.Time, error) {
	return s.firstMints, s.err
}

func (s *ledgerStub) ListTransactions(context.Context, db.TransactionFilter, int, int) ([]ledger.PairTransaction, int64, error) {
	return s.txs, s.txTotal, s.err
}

func (s *ledgerStub) CountTransactions(context.Context, db.TimeRange) (int64, error) {
	return s.count, s.err
}

func (s *ledgerStub) InsertSnapshot(_ context.Context, entries []ledger.SnapshotEntry) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, entries)
	return nil
}

func (s *ledgerStub) ListSnapshots(context.Context) ([]ledger.Snapshot, error) {
	return s.snapshots, s.err
}

func (s *ledgerStub) DatabaseName() string { return "ammx_test" }

func (s *ledgerStub) Ping(context.Context) error { return s.pingErr }

func (s *ledgerStub) Close() error { return nil }

func testRegistry() *registry.Registry {
	reg := registry.New()
	eth := registry.Token{Address: "0xe", Name: "Ether", Symbol: "ETH", Decimals: 18}
	usdc := registry.Token{Address: "0xu", Name: "USD Coin", Symbol: "USDC", Decimals: 6}
	reg.Replace([]registry.Pair{
		{Token0: eth, Token1: usdc, PairAddress: "0xp", Decimals: registry.PairDecimals, Liquidity: 5000, APR: "4"},
		{Token0: eth, Token1: usdc, PairAddress: "0xdust", Decimals: registry.PairDecimals, Liquidity: 0.001, APR: "0"},
	})
	return reg
}

const (
	testAdminToken = "test-token"
	testAdminUser  = "admin"
	testAdminPass  = "s3cret"
)

// newTestController builds a controller over store with a fixed clock and static ETH price.
func newTestController(t *testing.T, store *ledgerStub) (*Controller, *mux.Router) {
	t.Helper()

	logger := zap.NewNop()
	aggregator := &analytics.Aggregator{
		Store:    store,
		Registry: testRegistry(),
		Oracle:   oracle.StaticOracle{"ETH": 2000},
		Logger:   logger,
		Now:      func() time.Time { return testNow },
	}
	app := &types.App{
		Store:      store,
		Aggregator: aggregator,
		DayCache:   analytics.NewDayCache(aggregator, logger),
		Logger:     logger,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	require.NoError(t, err)

	c := &Controller{
		App:        app,
		AdminToken: testAdminToken,
		AuthUser:   testAdminUser,
		AuthHash:   hash,
		JWTSecret:  []byte("test-secret"),
	}
	router, err := c.NewRouter()
	require.NoError(t, err)
	return c, router
}
