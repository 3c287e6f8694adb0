package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/canopy-network/ammx/pkg/config"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/pipeline"
	"github.com/canopy-network/ammx/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// stubStore serves an empty ledger. Methods the pipeline jobs under test do not reach panic.
type stubStore struct {
	db.LedgerStore

	snapshots [][]ledger.SnapshotEntry
	pending   []ledger.PairEvent
	skipped   []string
	err       error
}

func (s *stubStore) PendingEvents(context.Context, []string, int) ([]ledger.PairEvent, error) {
	return s.pending, s.err
}

func (s *stubStore) SkipEvents(_ context.Context, eventIDs []string) error {
	s.skipped = append(s.skipped, eventIDs...)
	return nil
}

func (s *stubStore) AccountAmounts(context.Context, []string) ([]ledger.AccountAmountRow, error) {
	return nil, s.err
}

func (s *stubStore) InsertSnapshot(_ context.Context, entries []ledger.SnapshotEntry) error {
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, entries)
	return nil
}

func newTestApp(t *testing.T, store *stubStore) *App {
	t.Helper()
	return newTestAppWithLogger(t, store, zaptest.NewLogger(t))
}

func newTestAppWithLogger(t *testing.T, store *stubStore, logger *zap.Logger) *App {
	t.Helper()
	network := config.Network{
		Name:           "testnet",
		FactoryAddress: "0xfac",
		IndexerURL:     "http://indexer.invalid",
		RPCURL:         "http://rpc.invalid",
	}
	app := New(store, pipeline.NewSources(network, nil, logger), nil, logger)
	t.Cleanup(app.Pool.StopAndWait)
	return app
}

func TestNewSharesRegistryAndPool(t *testing.T) {
	app := newTestApp(t, &stubStore{})

	assert.Same(t, app.Sources.Registry, app.Ingestor.Registry)
	assert.Same(t, app.Sources.Registry, app.Aggregator.Registry)
	assert.Nil(t, app.Ingestor.Publisher)
	assert.Equal(t, app.Pool, app.Ingestor.Pool)
	assert.Equal(t, app.Pool, app.Purifier.Pool)
	assert.Equal(t, "testnet", app.Ingestor.Network)
}

func TestRouter(t *testing.T) {
	app := newTestApp(t, &stubStore{})
	router := app.Router()

	get := func(path string) int {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, get("/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/metrics"))

	app.Sources.Registry.Replace([]registry.Pair{{PairAddress: "0xp"}})
	assert.Equal(t, http.StatusOK, get("/readyz"))
}

func TestScheduleDefaults(t *testing.T) {
	app := newTestApp(t, &stubStore{})

	specs := map[string]string{}
	var warm []string
	for _, j := range app.schedule() {
		specs[j.name] = j.spec
		if j.warm {
			warm = append(warm, j.name)
		}
	}
	assert.Equal(t, map[string]string{
		"rates":    DefaultRatesSchedule,
		"pool":     DefaultPoolSchedule,
		"ingest":   DefaultIngestSchedule,
		"purify":   DefaultPurifySchedule,
		"snapshot": DefaultSnapshotSchedule,
	}, specs)
	assert.Equal(t, []string{"rates", "pool"}, warm)
}

func TestScheduleEnvOverride(t *testing.T) {
	t.Setenv("INGEST_SCHEDULE", "*/5 * * * * *")
	app := newTestApp(t, &stubStore{})

	for _, j := range app.schedule() {
		if j.name == "ingest" {
			assert.Equal(t, "*/5 * * * * *", j.spec)
			return
		}
	}
	t.Fatal("ingest job not scheduled")
}

func TestSnapshotJob(t *testing.T) {
	store := &stubStore{}
	app := newTestApp(t, store)

	require.NoError(t, app.snapshot(context.Background()))
	require.Len(t, store.snapshots, 1)
	assert.Empty(t, store.snapshots[0])

	store.err = errors.New("read only")
	assert.Error(t, app.snapshot(context.Background()))
}

func TestPurifyJobWithNothingPending(t *testing.T) {
	app := newTestApp(t, &stubStore{})
	assert.NoError(t, app.purify(context.Background()))
}

func TestPurifyJobLogsOneSummary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	store := &stubStore{pending: []ledger.PairEvent{
		{EventID: "1_0_0", KeyName: ledger.KeyMint, EventData: `["0xa"]`},
	}}
	app := newTestAppWithLogger(t, store, zap.New(core))

	require.NoError(t, app.purify(context.Background()))
	assert.Equal(t, []string{"1_0_0"}, store.skipped)
	assert.Equal(t, 1, logs.FilterMessage("Purify cycle finished").Len())
}

func TestIngestJobWithoutPairs(t *testing.T) {
	app := newTestApp(t, &stubStore{})
	assert.NoError(t, app.Ingestor.RunOnce(context.Background()))
}
