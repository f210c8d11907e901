package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/domain"
	"ethtrader/internal/metrics"
	"ethtrader/internal/units"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSwapDeadline     = 20 * time.Minute
	DefaultGasLimitFallback = uint64(200_000)
)

// 30 gwei
var DefaultGasPriceFallback = big.NewInt(30_000_000_000)

var (
	hundred           = decimal.NewFromInt(100)
	minReferenceInput = big.NewInt(1_000)
)

type SwapOptions struct {
	ChainID          uint64
	DefaultDeadline  time.Duration
	GasLimitFallback uint64
	GasPriceFallback *big.Int
	Now              func() time.Time
}

// SwapService quotes, encodes and dry-runs router swaps for one wallet. Nothing is ever broadcast.
type SwapService struct {
	log      logger.Logger
	chain    ChainReader
	node     ChainNode
	balances *BalanceService
	journal  *Journal
	metrics  *metrics.Metrics
	wallet   common.Address

	chainID     uint64
	deadline    time.Duration
	gasFallback uint64
	gasPriceFb  *big.Int
	now         func() time.Time
}

func NewSwapService(
	log logger.Logger,
	chain ChainReader,
	node ChainNode,
	balances *BalanceService,
	journal *Journal,
	m *metrics.Metrics,
	wallet common.Address,
	opts SwapOptions,
) *SwapService {
	if opts.DefaultDeadline <= 0 {
		opts.DefaultDeadline = DefaultSwapDeadline
	}
	if opts.GasLimitFallback == 0 {
		opts.GasLimitFallback = DefaultGasLimitFallback
	}
	if opts.GasPriceFallback == nil || opts.GasPriceFallback.Sign() <= 0 {
		opts.GasPriceFallback = DefaultGasPriceFallback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SwapService{
		log:         log,
		chain:       chain,
		node:        node,
		balances:    balances,
		journal:     journal,
		metrics:     m,
		wallet:      wallet,
		chainID:     opts.ChainID,
		deadline:    opts.DefaultDeadline,
		gasFallback: opts.GasLimitFallback,
		gasPriceFb:  new(big.Int).Set(opts.GasPriceFallback),
		now:         opts.Now,
	}
}

// routeQuote is the chosen path and its raw expected output
type routeQuote struct {
	protocol  domain.Protocol
	path      []common.Address
	fee       uint32
	amountOut *big.Int
}

func (q *routeQuote) route() domain.SwapRoute {
	r := domain.SwapRoute{Protocol: q.protocol, Path: make([]string, len(q.path))}
	for i, a := range q.path {
		r.Path[i] = a.Hex()
	}
	if q.protocol == domain.ProtocolV3 {
		fee := q.fee
		r.FeeTier = &fee
	}
	return r
}

// SimulateSwap finds the best route, builds router calldata and dry-runs it with eth_call.
// A reverting simulation is reported in the result, not returned as an error.
func (s *SwapService) SimulateSwap(ctx context.Context, p domain.SwapParams) (*domain.SwapSimulationResult, error) {
	if err := validateSwapParams(p); err != nil {
		return nil, err
	}

	s.log.Infof("Simulating swap, from=%s to=%s amount=%s slippage=%s",
		p.FromToken.Hex(), p.ToToken.Hex(), p.AmountIn, p.SlippageTolerance)

	fromMeta := s.balances.TokenMetadata(ctx, p.FromToken)
	toMeta := s.balances.TokenMetadata(ctx, p.ToToken)

	q, err := s.bestV3(ctx, p.FromToken, p.ToToken, p.AmountIn)
	if err != nil {
		s.log.Debugf("No V3 route, trying V2: %v", err)
		q, err = s.bestV2(ctx, p.FromToken, p.ToToken, p.AmountIn)
		if err != nil {
			return nil, err
		}
	}

	minOut, err := minimumOut(q.amountOut, p.SlippageTolerance)
	if err != nil {
		return nil, err
	}

	deadline := p.Deadline
	if deadline == 0 {
		deadline = uint64(s.now().Add(s.deadline).Unix())
	}

	router, calldata, err := s.encode(q, p.AmountIn, minOut, deadline)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSimulationFailed, "failed to encode router call", err)
	}

	msg := ethereum.CallMsg{
		From:  s.wallet,
		To:    &router,
		Value: new(big.Int),
		Data:  calldata,
	}

	var simErr *string
	if _, err := s.node.CallContract(ctx, msg); err != nil {
		reason := classifySimulationError(err)
		s.log.Warnf("Swap simulation failed - transaction would revert: %s", reason)
		simErr = &reason
	} else {
		s.log.Info("Swap simulation successful - transaction would execute")
	}

	gas, gasPrice := s.gasQuote(ctx, msg)
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)

	impact := s.priceImpact(ctx, p, q)

	res := &domain.SwapSimulationResult{
		QuoteID:           domain.NewQuoteID(),
		SimulationSuccess: simErr == nil,
		SimulationError:   simErr,
		AmountIn:          units.FormatUnits(p.AmountIn, fromMeta.Decimals),
		AmountOutExpected: units.FormatUnits(q.amountOut, toMeta.Decimals),
		AmountOutMinimum:  units.FormatUnits(minOut, toMeta.Decimals),
		PriceImpact:       impact.String(),
		GasEstimate:       strconv.FormatUint(gas, 10),
		GasPrice:          gasPrice.String(),
		GasCostEth:        units.FormatUnits(gasCost, 18),
		Route:             q.route(),
		Transaction: domain.TransactionData{
			To:    router.Hex(),
			Data:  hexutil.Encode(calldata),
			Value: "0",
		},
	}

	s.metrics.SwapSimulated(string(q.protocol), res.SimulationSuccess)
	s.journal.Record(ctx, &domain.QuoteRecord{
		QuoteID:           res.QuoteID,
		Kind:              domain.QuoteKindSwap,
		ChainID:           s.chainID,
		TokenIn:           p.FromToken.Hex(),
		TokenOut:          p.ToToken.Hex(),
		AmountIn:          res.AmountIn,
		AmountOut:         res.AmountOutExpected,
		Source:            string(q.protocol),
		FeeTier:           q.fee,
		PriceImpact:       res.PriceImpact,
		SimulationSuccess: res.SimulationSuccess,
		CreatedAt:         s.now().UTC(),
	})

	return res, nil
}

func validateSwapParams(p domain.SwapParams) error {
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return apperr.New(apperr.KindParse, "amount must be greater than zero")
	}
	if p.FromToken == p.ToToken {
		return apperr.New(apperr.KindParse, "from and to tokens must differ")
	}
	if p.SlippageTolerance.IsNegative() || p.SlippageTolerance.GreaterThan(hundred) {
		return apperr.Newf(apperr.KindSlippageExceeded, "slippage tolerance %s%% is outside 0-100", p.SlippageTolerance)
	}
	return nil
}

// minimumOut floors out * (100 - slippage) / 100
func minimumOut(out *big.Int, slippage decimal.Decimal) (*big.Int, error) {
	// Div rounds to DivisionPrecision digits; Mul and Shift are exact
	kept := decimal.NewFromBigInt(out, 0).Mul(hundred.Sub(slippage)).Shift(-2)
	return units.FromDecimal(kept, 0)
}

// bestV3 keeps the fee tier with the largest quoted output
func (s *SwapService) bestV3(ctx context.Context, from, to common.Address, amountIn *big.Int) (*routeQuote, error) {
	var (
		best      *routeQuote
		poolFound bool
	)

	for _, fee := range s.chain.Addresses().FeeTiers {
		pool, err := s.chain.V3GetPool(ctx, from, to, fee)
		if err != nil {
			s.log.Debugf("getPool failed, fee=%d: %v", fee, err)
			continue
		}
		if pool == (common.Address{}) {
			continue
		}
		poolFound = true

		out, err := s.chain.V3QuoteExactInputSingle(ctx, from, to, fee, amountIn)
		if err != nil {
			s.log.Debugf("V3 quote failed, fee=%d: %v", fee, err)
			continue
		}
		if best == nil || out.Cmp(best.amountOut) > 0 {
			best = &routeQuote{protocol: domain.ProtocolV3, path: []common.Address{from, to}, fee: fee, amountOut: out}
		}
	}

	if !poolFound {
		return nil, apperr.ErrPoolNotFound
	}
	if best == nil || best.amountOut.Sign() == 0 {
		return nil, apperr.ErrInsufficientLiquidity
	}
	return best, nil
}

// bestV2 uses the direct pair, or a two-hop path through WETH when both legs exist
func (s *SwapService) bestV2(ctx context.Context, from, to common.Address, amountIn *big.Int) (*routeQuote, error) {
	weth := s.chain.Addresses().WETH

	pair, err := s.chain.V2GetPair(ctx, from, to)
	if err != nil {
		return nil, err
	}

	path := []common.Address{from, to}
	if pair == (common.Address{}) {
		legA, err := s.chain.V2GetPair(ctx, from, weth)
		if err != nil {
			return nil, err
		}
		legB, err := s.chain.V2GetPair(ctx, weth, to)
		if err != nil {
			return nil, err
		}
		if legA == (common.Address{}) || legB == (common.Address{}) {
			return nil, apperr.ErrPoolNotFound
		}
		path = []common.Address{from, weth, to}
	}

	amounts, err := s.chain.V2GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if out.Sign() == 0 {
		return nil, apperr.ErrInsufficientLiquidity
	}

	return &routeQuote{protocol: domain.ProtocolV2, path: path, amountOut: out}, nil
}

func (s *SwapService) encode(q *routeQuote, amountIn, minOut *big.Int, deadline uint64) (common.Address, []byte, error) {
	addrs := s.chain.Addresses()
	dl := new(big.Int).SetUint64(deadline)

	switch q.protocol {
	case domain.ProtocolV3:
		data, err := s.chain.EncodeV3ExactInputSingle(chain.ExactInputSingleParams{
			TokenIn:           q.path[0],
			TokenOut:          q.path[len(q.path)-1],
			Fee:               new(big.Int).SetUint64(uint64(q.fee)),
			Recipient:         s.wallet,
			Deadline:          dl,
			AmountIn:          amountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		})
		return addrs.V3Router, data, err
	default:
		data, err := s.chain.EncodeV2SwapExactTokensForTokens(amountIn, minOut, q.path, s.wallet, dl)
		return addrs.V2Router, data, err
	}
}

// gasQuote reads the estimate and the gas price together; either falls back on failure
func (s *SwapService) gasQuote(ctx context.Context, msg ethereum.CallMsg) (uint64, *big.Int) {
	gas := s.gasFallback
	price := new(big.Int).Set(s.gasPriceFb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		est, err := s.node.EstimateGas(gctx, msg)
		if err != nil {
			s.log.Debugf("Gas estimation failed, using %d: %v", s.gasFallback, err)
			return nil
		}
		gas = est
		return nil
	})
	g.Go(func() error {
		p, err := s.node.SuggestGasPrice(gctx)
		if err != nil || p == nil {
			s.log.Debugf("Gas price unavailable, using %s: %v", s.gasPriceFb, err)
			return nil
		}
		price = p
		return nil
	})
	_ = g.Wait()

	return gas, price
}

// priceImpact compares the execution rate with the rate of a small reference trade on the same route.
// Any failure reports zero impact.
func (s *SwapService) priceImpact(ctx context.Context, p domain.SwapParams, q *routeQuote) decimal.Decimal {
	ref := referenceAmount(p.AmountIn)
	if ref.Sign() == 0 {
		return decimal.Zero
	}

	var refOut *big.Int
	switch q.protocol {
	case domain.ProtocolV3:
		out, err := s.chain.V3QuoteExactInputSingle(ctx, p.FromToken, p.ToToken, q.fee, ref)
		if err != nil {
			s.log.Debugf("Reference quote failed: %v", err)
			return decimal.Zero
		}
		refOut = out
	default:
		amounts, err := s.chain.V2GetAmountsOut(ctx, ref, q.path)
		if err != nil {
			s.log.Debugf("Reference quote failed: %v", err)
			return decimal.Zero
		}
		refOut = amounts[len(amounts)-1]
	}

	return impactFromRates(p.AmountIn, q.amountOut, ref, refOut)
}

// impactFromRates is (1 - (out*ref)/(refOut*in)) * 100, never negative, rounded to 4 places
func impactFromRates(in, out, ref, refOut *big.Int) decimal.Decimal {
	if refOut == nil || refOut.Sign() == 0 || in.Sign() == 0 {
		return decimal.Zero
	}

	num := decimal.NewFromBigInt(new(big.Int).Mul(out, ref), 0)
	den := decimal.NewFromBigInt(new(big.Int).Mul(refOut, in), 0)
	ratio := num.DivRound(den, 18)

	impact := decimal.NewFromInt(1).Sub(ratio).Mul(hundred)
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact.Round(4)
}

// referenceAmount is 0.1% of the input, at least 1000 raw units (capped at the input), at most 10% of it
func referenceAmount(in *big.Int) *big.Int {
	ref := new(big.Int).Quo(in, big.NewInt(1000))
	maxRef := new(big.Int).Quo(in, big.NewInt(10))

	switch {
	case ref.Cmp(minReferenceInput) < 0:
		if in.Cmp(minReferenceInput) < 0 {
			return new(big.Int).Set(in)
		}
		return new(big.Int).Set(minReferenceInput)
	case ref.Cmp(maxRef) > 0:
		return maxRef
	default:
		return ref
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// classifySimulationError maps a failed eth_call onto a user facing reason
func classifySimulationError(err error) string {
	msg := rootCause(err).Error()

	switch {
	case strings.Contains(msg, "insufficient"):
		return "Insufficient token balance or allowance"
	case strings.Contains(msg, "INSUFFICIENT_OUTPUT_AMOUNT"):
		return "Output amount is less than minimum (slippage exceeded)"
	case strings.Contains(msg, "EXPIRED"):
		return "Transaction deadline expired"
	case strings.Contains(msg, "TRANSFER_FROM_FAILED"):
		return "Token transfer failed - check token approval"
	case strings.Contains(msg, "execution reverted"):
		return fmt.Sprintf("Transaction would revert: %s", msg)
	default:
		return fmt.Sprintf("Simulation failed: %s", msg)
	}
}
