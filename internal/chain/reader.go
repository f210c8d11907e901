package chain

import (
	"context"
	"fmt"
	"math/big"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the read-only eth_call surface the typed reader needs
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// RoundData is the Chainlink latestRoundData tuple
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// ExactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Reader exposes typed contract reads and calldata encoders over any ContractCaller
type Reader struct {
	caller ContractCaller
	addrs  Addresses
	abis   *contractABIs
}

func NewReader(caller ContractCaller, addrs Addresses) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	return &Reader{caller: caller, addrs: addrs, abis: abis}, nil
}

func (r *Reader) Addresses() Addresses {
	return r.addrs
}

func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPC, "pack "+method, err)
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPC, fmt.Sprintf("call %s on %s", method, to.Hex()), err)
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPC, fmt.Sprintf("unpack %s from %s", method, to.Hex()), err)
	}
	return out, nil
}

func unexpected(method string, out []any) error {
	return apperr.Newf(apperr.KindChainRPC, "unexpected %s result: %v", method, out)
}

func bigAt(out []any, i int) (*big.Int, bool) {
	if len(out) <= i {
		return nil, false
	}
	v, ok := out[i].(*big.Int)
	return v, ok
}

func addressAt(out []any, i int) (common.Address, bool) {
	if len(out) <= i {
		return common.Address{}, false
	}
	v, ok := out[i].(common.Address)
	return v, ok
}

// ---- oracle ----

func (r *Reader) LatestRoundData(ctx context.Context, feed common.Address) (*RoundData, error) {
	out, err := r.call(ctx, feed, r.abis.aggregator, "latestRoundData")
	if err != nil {
		return nil, err
	}

	var rd RoundData
	var ok [5]bool
	rd.RoundID, ok[0] = bigAt(out, 0)
	rd.Answer, ok[1] = bigAt(out, 1)
	rd.StartedAt, ok[2] = bigAt(out, 2)
	rd.UpdatedAt, ok[3] = bigAt(out, 3)
	rd.AnsweredInRound, ok[4] = bigAt(out, 4)
	for _, v := range ok {
		if !v {
			return nil, unexpected("latestRoundData", out)
		}
	}
	return &rd, nil
}

func (r *Reader) FeedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	return r.uint8Call(ctx, feed, r.abis.aggregator, "decimals")
}

// ---- uniswap v2 ----

func (r *Reader) V2GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := r.call(ctx, r.addrs.V2Factory, r.abis.v2Factory, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	pair, ok := addressAt(out, 0)
	if !ok {
		return common.Address{}, unexpected("getPair", out)
	}
	return pair, nil
}

func (r *Reader) V2GetReserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error) {
	out, err := r.call(ctx, pair, r.abis.v2Pair, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	r0, ok0 := bigAt(out, 0)
	r1, ok1 := bigAt(out, 1)
	if !ok0 || !ok1 {
		return nil, nil, unexpected("getReserves", out)
	}
	return r0, r1, nil
}

func (r *Reader) V2Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	out, err := r.call(ctx, pair, r.abis.v2Pair, "token0")
	if err != nil {
		return common.Address{}, err
	}
	t0, ok := addressAt(out, 0)
	if !ok {
		return common.Address{}, unexpected("token0", out)
	}
	return t0, nil
}

func (r *Reader) V2GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	out, err := r.call(ctx, r.addrs.V2Router, r.abis.v2Router, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, unexpected("getAmountsOut", out)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, unexpected("getAmountsOut", out)
	}
	return amounts, nil
}

// ---- uniswap v3 ----

func (r *Reader) V3GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := r.call(ctx, r.addrs.V3Factory, r.abis.v3Factory, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	pool, ok := addressAt(out, 0)
	if !ok {
		return common.Address{}, unexpected("getPool", out)
	}
	return pool, nil
}

// V3QuoteExactInputSingle asks QuoterV2 for the output of a single-pool exact-input swap
func (r *Reader) V3QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	params := quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	}

	out, err := r.call(ctx, r.addrs.V3Quoter, r.abis.v3Quoter, "quoteExactInputSingle", params)
	if err != nil {
		return nil, err
	}
	amountOut, ok := bigAt(out, 0)
	if !ok {
		return nil, unexpected("quoteExactInputSingle", out)
	}
	return amountOut, nil
}

// ---- calldata encoders ----

func (r *Reader) EncodeV3ExactInputSingle(p ExactInputSingleParams) ([]byte, error) {
	if p.SqrtPriceLimitX96 == nil {
		p.SqrtPriceLimitX96 = new(big.Int)
	}
	data, err := r.abis.v3Router.Pack("exactInputSingle", p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPC, "pack exactInputSingle", err)
	}
	return data, nil
}

func (r *Reader) EncodeV2SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := r.abis.v2Router.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPC, "pack swapExactTokensForTokens", err)
	}
	return data, nil
}

// ---- erc20 ----

func (r *Reader) ERC20BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, r.abis.erc20, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	bal, ok := bigAt(out, 0)
	if !ok {
		return nil, unexpected("balanceOf", out)
	}
	return bal, nil
}

func (r *Reader) ERC20Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return r.uint8Call(ctx, token, r.abis.erc20, "decimals")
}

func (r *Reader) ERC20Symbol(ctx context.Context, token common.Address) (string, error) {
	return r.stringCall(ctx, token, r.abis.erc20, "symbol")
}

func (r *Reader) ERC20Name(ctx context.Context, token common.Address) (string, error) {
	return r.stringCall(ctx, token, r.abis.erc20, "name")
}

func (r *Reader) uint8Call(ctx context.Context, to common.Address, contract abi.ABI, method string) (uint8, error) {
	out, err := r.call(ctx, to, contract, method)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, unexpected(method, out)
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, unexpected(method, out)
	}
	return v, nil
}

func (r *Reader) stringCall(ctx context.Context, to common.Address, contract abi.ABI, method string) (string, error) {
	out, err := r.call(ctx, to, contract, method)
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", unexpected(method, out)
	}
	v, ok := out[0].(string)
	if !ok {
		return "", unexpected(method, out)
	}
	return v, nil
}
