package service

import (
	"context"
	"math/big"
	"time"

	"ethtrader/internal/apperr"
	"ethtrader/internal/domain"
	"ethtrader/internal/metrics"
	"ethtrader/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

const DefaultOracleStaleness = time.Hour

type PriceOptions struct {
	ChainID   uint64
	Staleness time.Duration
	Now       func() time.Time
}

// PriceService prices a token in USD or ETH: oracle first, then AMM V3, then AMM V2
type PriceService struct {
	log      logger.Logger
	chain    ChainReader
	balances *BalanceService
	journal  *Journal
	metrics  *metrics.Metrics

	chainID   uint64
	staleness time.Duration
	now       func() time.Time
}

func NewPriceService(log logger.Logger, chain ChainReader, balances *BalanceService, journal *Journal, m *metrics.Metrics, opts PriceOptions) *PriceService {
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultOracleStaleness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &PriceService{
		log:       log,
		chain:     chain,
		balances:  balances,
		journal:   journal,
		metrics:   m,
		chainID:   opts.ChainID,
		staleness: opts.Staleness,
		now:       opts.Now,
	}
}

func (s *PriceService) GetPrice(ctx context.Context, token common.Address, quote domain.QuoteCurrency) (*domain.PriceInfo, error) {
	s.log.Debugf("Fetching token price, token=%s quote=%s", token.Hex(), quote)

	addrs := s.chain.Addresses()
	meta := s.balances.TokenMetadata(ctx, token)
	info := domain.ERC20Token(token, meta.Symbol, meta.Decimals)

	// WETH is ETH and USDC is the USD proxy
	if token == addrs.WETH && quote == domain.QuoteETH {
		return s.answer(ctx, info, "1", quote, domain.SourceAmmV3), nil
	}
	if token == addrs.USDC && quote == domain.QuoteUSD {
		return s.answer(ctx, info, "1", quote, domain.SourceOracle), nil
	}

	if quote == domain.QuoteUSD {
		if feed, ok := addrs.Feed(token); ok {
			price, err := s.oraclePrice(ctx, feed)
			if err == nil {
				return s.answer(ctx, info, price.String(), quote, domain.SourceOracle), nil
			}
			s.log.Debugf("Oracle price for %s rejected, falling back to AMM: %v", token.Hex(), err)
		}
	}

	quoteToken := addrs.USDC
	if quote == domain.QuoteETH {
		quoteToken = addrs.WETH
	}
	quoteDecimals := s.balances.TokenMetadata(ctx, quoteToken).Decimals

	if price, err := s.v3Price(ctx, token, quoteToken, meta.Decimals, quoteDecimals); err == nil {
		return s.answer(ctx, info, price.String(), quote, domain.SourceAmmV3), nil
	} else {
		s.log.Debugf("V3 price for %s unavailable: %v", token.Hex(), err)
	}

	if price, err := s.v2Price(ctx, token, quoteToken, meta.Decimals, quoteDecimals); err == nil {
		return s.answer(ctx, info, price.String(), quote, domain.SourceAmmV2), nil
	} else {
		s.log.Debugf("V2 price for %s unavailable: %v", token.Hex(), err)
	}

	return nil, apperr.Newf(apperr.KindPoolNotFound, "no price source for %s in %s", token.Hex(), quote)
}

func (s *PriceService) answer(ctx context.Context, token domain.TokenInfo, price string, quote domain.QuoteCurrency, source domain.PriceSource) *domain.PriceInfo {
	now := s.now()
	info := &domain.PriceInfo{
		Token:         token,
		Price:         price,
		QuoteCurrency: quote,
		Source:        source,
		Timestamp:     uint64(now.Unix()),
	}

	s.metrics.PriceQuoted(source.String())

	tokenIn := ""
	if token.Address != nil {
		tokenIn = token.Address.Hex()
	}
	s.journal.Record(ctx, &domain.QuoteRecord{
		QuoteID:           domain.NewQuoteID(),
		Kind:              domain.QuoteKindPrice,
		ChainID:           s.chainID,
		TokenIn:           tokenIn,
		TokenOut:          string(quote),
		AmountIn:          "1",
		AmountOut:         price,
		Price:             price,
		Source:            source.String(),
		SimulationSuccess: true,
		CreatedAt:         now.UTC(),
	})

	return info
}

// oraclePrice validates the latest round; any rejection is an error the caller falls through on
func (s *PriceService) oraclePrice(ctx context.Context, feed common.Address) (decimal.Decimal, error) {
	rd, err := s.chain.LatestRoundData(ctx, feed)
	if err != nil {
		return decimal.Zero, err
	}
	dec, err := s.chain.FeedDecimals(ctx, feed)
	if err != nil {
		return decimal.Zero, err
	}

	if rd.AnsweredInRound.Cmp(rd.RoundID) < 0 {
		return decimal.Zero, apperr.Newf(apperr.KindPriceOracleInvalid,
			"stale oracle data: answeredInRound (%s) < roundId (%s)", rd.AnsweredInRound, rd.RoundID)
	}

	if !rd.UpdatedAt.IsInt64() {
		return decimal.Zero, apperr.Newf(apperr.KindNumericOverflow, "oracle updatedAt %s overflows int64", rd.UpdatedAt)
	}
	age := s.now().Unix() - rd.UpdatedAt.Int64()
	if age > int64(s.staleness/time.Second) {
		return decimal.Zero, apperr.Newf(apperr.KindPriceOracleInvalid,
			"stale oracle data: last update was %d seconds ago (threshold: %d)", age, int64(s.staleness/time.Second))
	}

	if rd.Answer.Sign() <= 0 {
		return decimal.Zero, apperr.Newf(apperr.KindPriceOracleInvalid, "invalid oracle answer: %s (must be positive)", rd.Answer)
	}

	return decimal.NewFromBigInt(rd.Answer, -int32(dec)), nil
}

// v3Price takes the first fee tier that quotes one whole input unit
func (s *PriceService) v3Price(ctx context.Context, tokenIn, tokenOut common.Address, inDecimals, outDecimals uint8) (decimal.Decimal, error) {
	one := units.Pow10(inDecimals)

	var lastErr error
	for _, fee := range s.chain.Addresses().FeeTiers {
		out, err := s.chain.V3QuoteExactInputSingle(ctx, tokenIn, tokenOut, fee, one)
		if err != nil {
			lastErr = err
			continue
		}
		if out.Sign() <= 0 {
			continue
		}
		return units.ToDecimal(out, outDecimals), nil
	}

	if lastErr != nil {
		return decimal.Zero, apperr.Wrap(apperr.KindPoolNotFound, "no V3 fee tier quoted", lastErr)
	}
	return decimal.Zero, apperr.ErrPoolNotFound
}

// v2Price is the reserve ratio of the direct pair, scaled by both decimals
func (s *PriceService) v2Price(ctx context.Context, tokenIn, tokenOut common.Address, inDecimals, outDecimals uint8) (decimal.Decimal, error) {
	pair, err := s.chain.V2GetPair(ctx, tokenIn, tokenOut)
	if err != nil {
		return decimal.Zero, err
	}
	if pair == (common.Address{}) {
		return decimal.Zero, apperr.ErrPoolNotFound
	}

	r0, r1, err := s.chain.V2GetReserves(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	token0, err := s.chain.V2Token0(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	reserveIn, reserveOut := r0, r1
	if token0 != tokenIn {
		reserveIn, reserveOut = r1, r0
	}
	if reserveIn.Sign() == 0 {
		return decimal.Zero, apperr.New(apperr.KindInsufficientLiquidity, "V2 pair has no input reserve")
	}

	price := decimal.NewFromBigInt(reserveOut, 0).
		Mul(decimal.NewFromBigInt(units.Pow10(inDecimals), 0)).
		DivRound(decimal.NewFromBigInt(new(big.Int).Mul(reserveIn, units.Pow10(outDecimals)), 0), 18)

	return price, nil
}
