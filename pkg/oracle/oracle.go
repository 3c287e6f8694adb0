package oracle

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Oracle converts raw token amounts into USD.
type Oracle interface {
	// USDValue returns amount / 10^decimals * price(symbol). amount may be negative.
	// An unknown symbol is worth 0.
	USDValue(ctx context.Context, amount decimal.Decimal, decimals int32, symbol string) (float64, error)
}

var stablecoins = map[string]bool{"USDC": true, "USDT": true, "DAI": true}

var aliases = map[string]string{"WETH": "ETH", "WBTC": "BTC"}

// canonical maps a token symbol to the symbol quoted by the rate feed.
func canonical(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if a, ok := aliases[s]; ok {
		return a
	}
	return s
}

func value(amount decimal.Decimal, decimals int32, price decimal.Decimal) float64 {
	f, _ := amount.Shift(-decimals).Mul(price).Float64()
	return f
}

// StaticOracle prices tokens from a fixed table.
type StaticOracle map[string]float64

func (s StaticOracle) USDValue(_ context.Context, amount decimal.Decimal, decimals int32, symbol string) (float64, error) {
	sym := canonical(symbol)
	if stablecoins[sym] {
		return value(amount, decimals, decimal.NewFromInt(1)), nil
	}
	p, ok := s[sym]
	if !ok {
		return 0, nil
	}
	return value(amount, decimals, decimal.NewFromFloat(p)), nil
}
