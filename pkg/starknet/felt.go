package starknet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/canopy-network/ammx/pkg/utils"
	"golang.org/x/crypto/sha3"
)

var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector returns the entry point selector of a function name: Keccak-256 of the name masked to 250 bits.
func Selector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	n := new(big.Int).SetBytes(h.Sum(nil))
	n.And(n, selectorMask)
	return "0x" + n.Text(16)
}

// DecodeShortString decodes a felt holding up to 31 ASCII bytes.
func DecodeShortString(felt string) (string, error) {
	n, ok := utils.ParseFelt(felt)
	if !ok {
		return "", fmt.Errorf("invalid felt %q", felt)
	}
	return strings.TrimRight(string(n.Bytes()), "\x00"), nil
}

// ParseUint256 composes a value from its low and high 128-bit felts.
func ParseUint256(low, high string) (*big.Int, error) {
	lo, ok := utils.ParseFelt(low)
	if !ok {
		return nil, fmt.Errorf("invalid uint256 low %q", low)
	}
	hi, ok := utils.ParseFelt(high)
	if !ok {
		return nil, fmt.Errorf("invalid uint256 high %q", high)
	}
	return new(big.Int).Or(new(big.Int).Lsh(hi, 128), lo), nil
}

// ToHex formats n as lowercase 0x hex.
func ToHex(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
