package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/canopy-network/ammx/pkg/feed"
	"github.com/canopy-network/ammx/pkg/metrics"
	"github.com/canopy-network/ammx/pkg/oracle"
	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/starknet"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// EdgesCacheKey holds the raw factory events between cycles.
	EdgesCacheKey = "pool_service-collect-edges"
	edgesCacheTTL = 3600 * time.Second

	factoryPageSize = 100
	pairCreatedKey  = "PairCreated"
)

// ErrNoFactoryEvents aborts a cycle when the indexer returned nothing for the factory.
var ErrNoFactoryEvents = errors.New("no factory events")

// Cache is the key/value store holding the factory edges.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// Collector rebuilds the pair list from the factory's PairCreated events and on-chain state.
type Collector struct {
	Registry       *Registry
	Feed           feed.Source
	Reader         starknet.Reader
	Oracle         oracle.Oracle
	Cache          Cache
	Executor       *retry.Executor
	Network        string
	FactoryAddress string
	Logger         *zap.Logger
	Now            func() time.Time
}

// Collect runs one cycle. On success the registry holds the new list; on any error
// the previous list stays published.
func (c *Collector) Collect(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RegistryCycles.WithLabelValues(c.Network, outcome).Inc()
		metrics.RegistryCycleLatency.WithLabelValues(c.Network).Observe(time.Since(start).Seconds())
	}()

	edges, err := c.factoryEdges(ctx)
	if err != nil {
		return err
	}

	pairs := make([]Pair, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, edge := range edges {
		node := edge.Node
		if node.KeyName != pairCreatedKey || len(node.Data) != 4 {
			continue
		}
		pairAddr := utils.NormalizeHex(node.Data[2])
		if seen[pairAddr] {
			continue
		}
		seen[pairAddr] = true
		pair, err := c.describePair(ctx,
			utils.NormalizeHex(node.Data[0]),
			utils.NormalizeHex(node.Data[1]),
			pairAddr)
		if err != nil {
			return fmt.Errorf("collect pairs: %w", err)
		}
		pairs = append(pairs, pair)
	}

	version := c.Registry.Replace(pairs)
	metrics.RegistryPairs.WithLabelValues(c.Network).Set(float64(len(pairs)))
	c.logger().Info("Pair registry updated",
		zap.String("network", c.Network),
		zap.Int("pairs", len(pairs)),
		zap.Uint64("version", version),
		zap.Duration("took", time.Since(start)))
	return nil
}

// factoryEdges returns the cached factory events, fetching and caching them on a miss.
func (c *Collector) factoryEdges(ctx context.Context) ([]feed.Edge, error) {
	if c.Cache != nil {
		raw, ok, err := c.Cache.Get(ctx, EdgesCacheKey)
		if err != nil {
			c.logger().Warn("Failed to read factory edges cache", zap.Error(err))
		}
		if ok {
			var edges []feed.Edge
			if jerr := json.Unmarshal([]byte(raw), &edges); jerr == nil && len(edges) > 0 {
				return edges, nil
			}
		}
	}

	page, err := retry.Call(ctx, c.Executor, "factory_events", func(ctx context.Context) (feed.Page, error) {
		return c.Feed.Events(ctx, feed.EventsRequest{
			FromAddress: c.FactoryAddress,
			Order:       feed.OrderDesc,
			First:       factoryPageSize,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("factory events: %w", err)
	}
	if len(page.Edges) == 0 {
		return nil, ErrNoFactoryEvents
	}

	if c.Cache != nil {
		if bz, err := json.Marshal(page.Edges); err == nil {
			if err := c.Cache.SetEx(ctx, EdgesCacheKey, string(bz), edgesCacheTTL); err != nil {
				c.logger().Warn("Failed to cache factory edges", zap.Error(err))
			}
		}
	}
	return page.Edges, nil
}

func (c *Collector) describePair(ctx context.Context, token0Addr, token1Addr, pairAddr string) (Pair, error) {
	token0, err := c.Registry.TokenOrLoad(ctx, token0Addr, c.loadToken)
	if err != nil {
		return Pair{}, err
	}
	token1, err := c.Registry.TokenOrLoad(ctx, token1Addr, c.loadToken)
	if err != nil {
		return Pair{}, err
	}

	supply, err := retry.Call(ctx, c.Executor, "pair_total_supply", func(ctx context.Context) (*big.Int, error) {
		return c.Reader.TotalSupply(ctx, pairAddr)
	})
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s: %w", pairAddr, err)
	}
	reserves, err := retry.Call(ctx, c.Executor, "pair_reserves", func(ctx context.Context) (starknet.Reserves, error) {
		return c.Reader.GetReserves(ctx, pairAddr)
	})
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s: %w", pairAddr, err)
	}

	liquidity0, err := c.Oracle.USDValue(ctx, decimal.NewFromBigInt(reserves.Reserve0, 0), token0.Decimals, token0.Symbol)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s liquidity: %w", pairAddr, err)
	}
	liquidity1, err := c.Oracle.USDValue(ctx, decimal.NewFromBigInt(reserves.Reserve1, 0), token1.Decimals, token1.Symbol)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s liquidity: %w", pairAddr, err)
	}

	return Pair{
		Token0:          token0,
		Token1:          token1,
		PairAddress:     pairAddr,
		Decimals:        PairDecimals,
		Reserve0:        starknet.ToHex(reserves.Reserve0),
		Reserve1:        starknet.ToHex(reserves.Reserve1),
		TotalSupply:     starknet.ToHex(supply),
		Liquidity:       liquidity0 + liquidity1,
		APR:             MockAPR(pairAddr),
		LastUpdatedTime: c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}, nil
}

// loadToken reads name, symbol and decimals one call at a time; the RPC rejects bursts.
func (c *Collector) loadToken(ctx context.Context, address string) (Token, error) {
	name, err := retry.Call(ctx, c.Executor, "token_name", func(ctx context.Context) (string, error) {
		return c.Reader.Name(ctx, address)
	})
	if err != nil {
		return Token{}, err
	}
	symbol, err := retry.Call(ctx, c.Executor, "token_symbol", func(ctx context.Context) (string, error) {
		return c.Reader.Symbol(ctx, address)
	})
	if err != nil {
		return Token{}, err
	}
	decimals, err := retry.Call(ctx, c.Executor, "token_decimals", func(ctx context.Context) (int32, error) {
		return c.Reader.Decimals(ctx, address)
	})
	if err != nil {
		return Token{}, err
	}
	return Token{Address: address, Name: name, Symbol: symbol, Decimals: decimals}, nil
}

// MockAPR derives a display APR from the last two hex digits of the pair address:
// round(sqrt(n)) as a decimal string.
func MockAPR(pairAddress string) string {
	digits := strings.TrimPrefix(strings.ToLower(pairAddress), "0x")
	if len(digits) > 2 {
		digits = digits[len(digits)-2:]
	}
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		n = 0
	}
	return strconv.FormatFloat(math.Round(math.Sqrt(float64(n))), 'f', 0, 64)
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Collector) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
