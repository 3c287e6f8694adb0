package registry

// Token describes an ERC20 token of a pair.
type Token struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// Pair is a liquidity pool as published to readers. Reserves and supply are 0x hex strings;
// Liquidity is the USD value of both reserves.
type Pair struct {
	Token0          Token   `json:"token0"`
	Token1          Token   `json:"token1"`
	PairAddress     string  `json:"pairAddress"`
	Decimals        int32   `json:"decimals"`
	Reserve0        string  `json:"reserve0"`
	Reserve1        string  `json:"reserve1"`
	TotalSupply     string  `json:"totalSupply"`
	Liquidity       float64 `json:"liquidity"`
	APR             string  `json:"APR"`
	LastUpdatedTime string  `json:"lastUpdatedTime,omitempty"`
}

// PairDecimals is the decimals of every pair's LP token.
const PairDecimals = 18
