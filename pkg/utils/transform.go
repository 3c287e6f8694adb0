package utils

import (
	"math/big"
	"strings"
)

func BoolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Dedup removes duplicates and trailing slashes from a list of endpoints.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// NormalizeHex returns the canonical lowercase 0x form of a felt, without leading zeros.
// Decimal input is accepted as well. Unparseable input is returned lowercased and trimmed.
func NormalizeHex(v string) string {
	n, ok := ParseFelt(v)
	if !ok {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return "0x" + n.Text(16)
}

// ParseFelt parses a 0x-prefixed hex or a decimal string into a big.Int.
func ParseFelt(v string) (*big.Int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, false
	}
	n := new(big.Int)
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		if len(v) == 2 {
			return n, true
		}
		_, ok := n.SetString(v[2:], 16)
		return n, ok
	}
	_, ok := n.SetString(v, 10)
	return n, ok
}
