package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ammxredis "github.com/canopy-network/ammx/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newCache(t *testing.T) (*ammxredis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return ammxredis.NewFromClient(rdb, zaptest.NewLogger(t)), mr
}

func TestStaticOracle(t *testing.T) {
	o := StaticOracle{"ETH": 2000}
	ctx := context.Background()

	v, err := o.USDValue(ctx, decimal.RequireFromString("1500000000000000000"), 18, "WETH")
	require.NoError(t, err)
	assert.InDelta(t, 3000, v, 1e-9)

	v, err = o.USDValue(ctx, decimal.NewFromInt(-2500000), 6, "USDC")
	require.NoError(t, err)
	assert.InDelta(t, -2.5, v, 1e-9)

	v, err = o.USDValue(ctx, decimal.NewFromInt(100), 0, "UNKNOWN")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestRateOracleRefreshFromFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/exchange-rates", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		_, _ = w.Write([]byte(`{"data":{"currency":"USD","rates":{"ETH":"0.0005","BTC":"0.00004","BAD":"0"}}}`))
	}))
	defer srv.Close()
	cache, mr := newCache(t)

	o := NewRateOracle(srv.URL, cache, zaptest.NewLogger(t))
	require.NoError(t, o.Refresh(context.Background()))

	v, err := o.USDValue(context.Background(), decimal.RequireFromString("1000000000000000000"), 18, "ETH")
	require.NoError(t, err)
	assert.InDelta(t, 2000, v, 1e-6)

	p, ok := o.Price("WBTC")
	require.True(t, ok)
	assert.InDelta(t, 25000, p.InexactFloat64(), 1e-6)

	_, ok = o.Price("BAD")
	assert.False(t, ok)

	assert.True(t, mr.Exists(RatesCacheKey))
	assert.Equal(t, time.Hour, mr.TTL(RatesCacheKey))
}

func TestRateOracleFallsBackToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	require.NoError(t, mr.Set(RatesCacheKey, `{"ETH":"1800"}`))

	o := NewRateOracle(srv.URL, cache, zaptest.NewLogger(t))
	require.NoError(t, o.Refresh(context.Background()))

	p, ok := o.Price("ETH")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(1800)))
}

func TestRateOracleKeepsPreviousRates(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"rates":{"ETH":"0.001"}}}`))
	}))
	defer srv.Close()

	o := NewRateOracle(srv.URL, nil, zaptest.NewLogger(t))
	require.NoError(t, o.Refresh(context.Background()))

	fail.Store(true)
	require.Error(t, o.Refresh(context.Background()))

	p, ok := o.Price("ETH")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(1000)))
}
