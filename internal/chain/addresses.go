package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	ChainIDMainnet uint64 = 1
	ChainIDSepolia uint64 = 11155111
)

// V3 fee tiers in hundredths of a basis point, ascending
var DefaultFeeTiers = []uint32{100, 500, 3000, 10000}

// Addresses is the immutable set of well-known contracts a deployment talks to.
// Built once at start-up and injected; never mutated afterwards.
type Addresses struct {
	WETH common.Address
	USDC common.Address
	WBTC common.Address
	UNI  common.Address

	// token -> Chainlink aggregator (USD quoted)
	OracleFeeds map[common.Address]common.Address

	V2Router  common.Address
	V2Factory common.Address

	V3Router  common.Address
	V3Factory common.Address
	V3Quoter  common.Address

	FeeTiers []uint32
}

func MainnetAddresses() Addresses {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wbtc := common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")

	return Addresses{
		WETH: weth,
		USDC: usdc,
		WBTC: wbtc,
		UNI:  common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"),
		OracleFeeds: map[common.Address]common.Address{
			weth: common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), // ETH/USD
			wbtc: common.HexToAddress("0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"), // BTC/USD
			usdc: common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"), // USDC/USD
		},
		V2Router:  common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		V2Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		V3Router:  common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		V3Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		V3Quoter:  common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		FeeTiers:  append([]uint32(nil), DefaultFeeTiers...),
	}
}

// Feed returns the oracle aggregator for token, if any.
func (a Addresses) Feed(token common.Address) (common.Address, bool) {
	feed, ok := a.OracleFeeds[token]
	return feed, ok
}
