package pipeline

import (
	"time"

	"github.com/canopy-network/ammx/pkg/config"
	"github.com/canopy-network/ammx/pkg/feed"
	"github.com/canopy-network/ammx/pkg/oracle"
	ammxredis "github.com/canopy-network/ammx/pkg/redis"
	"github.com/canopy-network/ammx/pkg/registry"
	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/starknet"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
)

// DefaultRatesURL is the exchange-rates host used when RATES_URL is unset.
const DefaultRatesURL = "https://api.coinbase.com"

// Sources is the set of remote collaborators shared by the indexer and the query API.
type Sources struct {
	Network   config.Network
	Feed      *feed.Client
	Chain     *starknet.Client
	Oracle    *oracle.RateOracle
	Registry  *registry.Registry
	Collector *registry.Collector
	Executor  *retry.Executor
}

// NewSources wires the indexer feed, the Starknet reader, the USD rate oracle and a
// Pair Registry with its collector for network. rdb may be nil, in which case the
// factory edges and rates are not cached between processes.
//
// Environment variables:
//   - RATES_URL: exchange-rates host (default: DefaultRatesURL)
//   - STARKNET_RPS, STARKNET_BURST: RPC token bucket (default: 10, 20)
//   - STARKNET_TIMEOUT: RPC request timeout (default: 15s)
func NewSources(network config.Network, rdb *ammxredis.Client, logger *zap.Logger) *Sources {
	if logger == nil {
		logger = zap.NewNop()
	}

	// a typed nil must not leak into the Cache interfaces
	var (
		edgeCache registry.Cache
		rateCache oracle.Cache
	)
	if rdb != nil {
		edgeCache = rdb
		rateCache = rdb
	}

	executor := retry.NewExecutor(logger)
	feedClient := feed.NewClient(network.IndexerURL, logger)
	chain := starknet.NewClient(starknet.Opts{
		Endpoints: []string{network.RPCURL},
		Timeout:   utils.EnvDuration("STARKNET_TIMEOUT", 15*time.Second),
		RPS:       utils.EnvInt("STARKNET_RPS", 10),
		Burst:     utils.EnvInt("STARKNET_BURST", 20),
	})
	rates := oracle.NewRateOracle(utils.Env("RATES_URL", DefaultRatesURL), rateCache, logger)
	reg := registry.New()

	return &Sources{
		Network:  network,
		Feed:     feedClient,
		Chain:    chain,
		Oracle:   rates,
		Registry: reg,
		Collector: &registry.Collector{
			Registry:       reg,
			Feed:           feedClient,
			Reader:         chain,
			Oracle:         rates,
			Cache:          edgeCache,
			Executor:       executor,
			Network:        network.Name,
			FactoryAddress: network.FactoryAddress,
			Logger:         logger,
		},
		Executor: executor,
	}
}
