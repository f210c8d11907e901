package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const aggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

const v2FactoryABI = `[
	{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const v2PairABI = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}
	],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const v2RouterABI = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}
	],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const v3FactoryABI = `[
	{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`

const v3QuoterABI = `[
	{"inputs":[{"components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"amountIn","type":"uint256"},
		{"name":"fee","type":"uint24"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}
	],"name":"params","type":"tuple"}],
	"name":"quoteExactInputSingle",
	"outputs":[
		{"name":"amountOut","type":"uint256"},
		{"name":"sqrtPriceX96After","type":"uint160"},
		{"name":"initializedTicksCrossed","type":"uint32"},
		{"name":"gasEstimate","type":"uint256"}
	],"stateMutability":"nonpayable","type":"function"}
]`

const v3RouterABI = `[
	{"inputs":[{"components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}
	],"name":"params","type":"tuple"}],
	"name":"exactInputSingle",
	"outputs":[{"name":"amountOut","type":"uint256"}],
	"stateMutability":"payable","type":"function"}
]`

// parsed contract interfaces
type contractABIs struct {
	erc20      abi.ABI
	aggregator abi.ABI
	v2Factory  abi.ABI
	v2Pair     abi.ABI
	v2Router   abi.ABI
	v3Factory  abi.ABI
	v3Quoter   abi.ABI
	v3Router   abi.ABI
}

func parseABIs() (*contractABIs, error) {
	var (
		out contractABIs
		err error
	)

	targets := []struct {
		name string
		src  string
		dst  *abi.ABI
	}{
		{"erc20", erc20ABI, &out.erc20},
		{"aggregatorV3", aggregatorV3ABI, &out.aggregator},
		{"uniswapV2Factory", v2FactoryABI, &out.v2Factory},
		{"uniswapV2Pair", v2PairABI, &out.v2Pair},
		{"uniswapV2Router02", v2RouterABI, &out.v2Router},
		{"uniswapV3Factory", v3FactoryABI, &out.v3Factory},
		{"quoterV2", v3QuoterABI, &out.v3Quoter},
		{"swapRouter", v3RouterABI, &out.v3Router},
	}

	for _, t := range targets {
		if *t.dst, err = abi.JSON(strings.NewReader(t.src)); err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", t.name, err)
		}
	}

	return &out, nil
}
