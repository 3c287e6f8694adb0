package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/ammx/pkg/metrics"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// RatesCacheKey holds the last fetched USD prices.
	RatesCacheKey = "ammx:oracle:rates"
	ratesCacheTTL = time.Hour
)

// Cache is the key/value store backing the rate table between processes.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// RateOracle prices tokens from a Coinbase-style exchange rates feed.
type RateOracle struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewRateOracle returns an oracle with an empty price table. Call Refresh to populate it.
func NewRateOracle(baseURL string, cache Cache, logger *zap.Logger) *RateOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		logger:     logger,
		prices:     map[string]decimal.Decimal{},
	}
}

var _ Oracle = (*RateOracle)(nil)

func (o *RateOracle) USDValue(_ context.Context, amount decimal.Decimal, decimals int32, symbol string) (float64, error) {
	sym := canonical(symbol)
	if stablecoins[sym] {
		return value(amount, decimals, decimal.NewFromInt(1)), nil
	}
	o.mu.RLock()
	p, ok := o.prices[sym]
	o.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return value(amount, decimals, p), nil
}

// Price returns the USD price of symbol and whether it is known.
func (o *RateOracle) Price(symbol string) (decimal.Decimal, bool) {
	sym := canonical(symbol)
	if stablecoins[sym] {
		return decimal.NewFromInt(1), true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[sym]
	return p, ok
}

// Refresh fetches the rate table. When the feed is unavailable the cached table is loaded instead;
// when both fail the current table is kept and the fetch error returned.
func (o *RateOracle) Refresh(ctx context.Context) error {
	prices, raw, err := o.fetch(ctx)
	if err == nil {
		o.store(prices)
		metrics.OracleRefreshes.WithLabelValues("feed").Inc()
		if o.cache != nil {
			if cerr := o.cache.SetEx(ctx, RatesCacheKey, raw, ratesCacheTTL); cerr != nil {
				o.logger.Warn("Failed to cache USD rates", zap.Error(cerr))
			}
		}
		return nil
	}

	o.logger.Warn("USD rate feed unavailable, trying cache", zap.Error(err))
	if o.cache != nil {
		cached, ok, cerr := o.cache.Get(ctx, RatesCacheKey)
		if cerr == nil && ok {
			var prices map[string]decimal.Decimal
			if jerr := json.Unmarshal([]byte(cached), &prices); jerr == nil && len(prices) > 0 {
				o.store(prices)
				metrics.OracleRefreshes.WithLabelValues("cache").Inc()
				return nil
			}
		}
	}
	metrics.OracleRefreshes.WithLabelValues("stale").Inc()
	return fmt.Errorf("refresh USD rates: %w", err)
}

func (o *RateOracle) store(prices map[string]decimal.Decimal) {
	o.mu.Lock()
	o.prices = prices
	o.mu.Unlock()
}

type ratesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// fetch returns prices keyed by symbol along with their JSON encoding for the cache.
func (o *RateOracle) fetch(ctx context.Context) (map[string]decimal.Decimal, string, error) {
	op := func() (map[string]decimal.Decimal, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v2/exchange-rates?currency=USD", nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := o.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			_ = utils.DrainAndClose(resp.Body)
			return nil, fmt.Errorf("server %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			_ = utils.DrainAndClose(resp.Body)
			return nil, backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
		}
		bz, err := utils.ReadBody(resp.Body, 4<<20)
		if err != nil {
			return nil, err
		}
		var out ratesResponse
		if err := json.Unmarshal(bz, &out); err != nil {
			return nil, backoff.Permanent(err)
		}
		return invert(out.Data.Rates)
	}

	prices, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
	if err != nil {
		return nil, "", err
	}
	bz, err := json.Marshal(prices)
	if err != nil {
		return nil, "", err
	}
	return prices, string(bz), nil
}

// invert turns "units per USD" rates into USD prices.
func invert(rates map[string]string) (map[string]decimal.Decimal, error) {
	if len(rates) == 0 {
		return nil, backoff.Permanent(errors.New("empty rate table"))
	}
	prices := make(map[string]decimal.Decimal, len(rates))
	for sym, r := range rates {
		rate, err := decimal.NewFromString(r)
		if err != nil || !rate.IsPositive() {
			continue
		}
		prices[strings.ToUpper(sym)] = decimal.NewFromInt(1).DivRound(rate, 18)
	}
	return prices, nil
}
