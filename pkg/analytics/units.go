package analytics

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUnits renders a raw integer amount scaled down by decimals, always with a
// fractional part: "1500000", 6 -> "1.5" and "1000", 3 -> "1.0".
func FormatUnits(amount string, decimals int32) string {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "0.0"
	}
	s := d.Shift(-decimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// parseAmount reads a base 10 integer sum. Malformed or empty sums count as zero.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
