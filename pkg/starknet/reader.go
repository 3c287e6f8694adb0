package starknet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/canopy-network/ammx/pkg/utils"
)

// Reader exposes the contract reads needed to describe tokens and pairs.
type Reader interface {
	Name(ctx context.Context, token string) (string, error)
	Symbol(ctx context.Context, token string) (string, error)
	Decimals(ctx context.Context, token string) (int32, error)
	TotalSupply(ctx context.Context, pair string) (*big.Int, error)
	GetReserves(ctx context.Context, pair string) (Reserves, error)
	TransactionSender(ctx context.Context, txHash string) (string, error)
}

// Reserves is the result of a pair's getReserves.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

var _ Reader = (*Client)(nil)

type functionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

type callParams struct {
	Request functionCall `json:"request"`
	BlockID string       `json:"block_id"`
}

// Call invokes a view function at the latest block and returns the raw result felts.
func (c *Client) Call(ctx context.Context, contract, function string, calldata ...string) ([]string, error) {
	if calldata == nil {
		calldata = []string{}
	}
	params := callParams{
		Request: functionCall{
			ContractAddress:    contract,
			EntryPointSelector: Selector(function),
			Calldata:           calldata,
		},
		BlockID: "latest",
	}
	var out []string
	if err := c.call(ctx, "starknet_call", params, &out); err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, function, err)
	}
	return out, nil
}

func (c *Client) Name(ctx context.Context, token string) (string, error) {
	return c.shortString(ctx, token, "name")
}

func (c *Client) Symbol(ctx context.Context, token string) (string, error) {
	return c.shortString(ctx, token, "symbol")
}

func (c *Client) Decimals(ctx context.Context, token string) (int32, error) {
	out, err := c.Call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) < 1 {
		return 0, fmt.Errorf("decimals of %s: empty result", token)
	}
	n, ok := utils.ParseFelt(out[0])
	if !ok || !n.IsInt64() || n.Int64() > 255 {
		return 0, fmt.Errorf("decimals of %s: invalid value %q", token, out[0])
	}
	return int32(n.Int64()), nil
}

func (c *Client) TotalSupply(ctx context.Context, pair string) (*big.Int, error) {
	out, err := c.Call(ctx, pair, "totalSupply")
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("totalSupply of %s: expected uint256, got %d felts", pair, len(out))
	}
	return ParseUint256(out[0], out[1])
}

// GetReserves reads the pair reserves. Pairs return either two felts or two uint256 values,
// optionally followed by the last block timestamp.
func (c *Client) GetReserves(ctx context.Context, pair string) (Reserves, error) {
	out, err := c.Call(ctx, pair, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	return decodeReserves(out)
}

func decodeReserves(out []string) (Reserves, error) {
	switch len(out) {
	case 2, 3:
		r0, ok0 := utils.ParseFelt(out[0])
		r1, ok1 := utils.ParseFelt(out[1])
		if !ok0 || !ok1 {
			return Reserves{}, fmt.Errorf("getReserves: invalid felts %v", out)
		}
		return Reserves{Reserve0: r0, Reserve1: r1}, nil
	case 4, 5:
		r0, err := ParseUint256(out[0], out[1])
		if err != nil {
			return Reserves{}, fmt.Errorf("getReserves: %w", err)
		}
		r1, err := ParseUint256(out[2], out[3])
		if err != nil {
			return Reserves{}, fmt.Errorf("getReserves: %w", err)
		}
		return Reserves{Reserve0: r0, Reserve1: r1}, nil
	default:
		return Reserves{}, fmt.Errorf("getReserves: unexpected result length %d", len(out))
	}
}

type transaction struct {
	SenderAddress   string `json:"sender_address"`
	ContractAddress string `json:"contract_address"`
}

// TransactionSender returns the account that submitted the transaction.
func (c *Client) TransactionSender(ctx context.Context, txHash string) (string, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "starknet_getTransactionByHash", map[string]string{"transaction_hash": txHash}, &raw); err != nil {
		return "", fmt.Errorf("transaction %s: %w", txHash, err)
	}
	var tx transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return "", fmt.Errorf("transaction %s: %w", txHash, err)
	}
	sender := tx.SenderAddress
	if sender == "" {
		sender = tx.ContractAddress
	}
	if sender == "" {
		return "", fmt.Errorf("transaction %s: no sender", txHash)
	}
	return utils.NormalizeHex(sender), nil
}

func (c *Client) shortString(ctx context.Context, contract, function string) (string, error) {
	out, err := c.Call(ctx, contract, function)
	if err != nil {
		return "", err
	}
	if len(out) < 1 {
		return "", fmt.Errorf("%s of %s: empty result", function, contract)
	}
	return DecodeShortString(out[0])
}
