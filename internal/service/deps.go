package service

import (
	"context"
	"math/big"

	"ethtrader/internal/chain"
	"ethtrader/internal/domain"
	"ethtrader/internal/registry"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the typed contract surface; *chain.Reader implements it
type ChainReader interface {
	Addresses() chain.Addresses

	LatestRoundData(ctx context.Context, feed common.Address) (*chain.RoundData, error)
	FeedDecimals(ctx context.Context, feed common.Address) (uint8, error)

	V2GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)
	V2GetReserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error)
	V2Token0(ctx context.Context, pair common.Address) (common.Address, error)
	V2GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	V3GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	V3QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)

	ERC20BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	ERC20Decimals(ctx context.Context, token common.Address) (uint8, error)
	ERC20Symbol(ctx context.Context, token common.Address) (string, error)
	ERC20Name(ctx context.Context, token common.Address) (string, error)

	EncodeV3ExactInputSingle(p chain.ExactInputSingleParams) ([]byte, error)
	EncodeV2SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
}

// ChainNode is the raw RPC surface; *chain.Client implements it
type ChainNode interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// TokenRegistry is the read side of *registry.Registry
type TokenRegistry interface {
	ResolveSymbol(ctx context.Context, symbol string) (domain.TokenEntry, bool)
	LookupAddress(ctx context.Context, addr common.Address) (domain.TokenEntry, bool)
	ListTokens(ctx context.Context) []domain.TokenEntry
	Stats() registry.CacheStats
}

var (
	_ ChainReader   = (*chain.Reader)(nil)
	_ ChainNode     = (*chain.Client)(nil)
	_ TokenRegistry = (*registry.Registry)(nil)
)
