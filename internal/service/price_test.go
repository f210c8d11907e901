package service

import (
	"context"
	"math/big"
	"testing"

	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ethUSDRound(updatedAt int64) *chain.RoundData {
	return &chain.RoundData{
		RoundID:         big.NewInt(10),
		Answer:          big.NewInt(250_000_000_000), // 2500 * 1e8
		StartedAt:       big.NewInt(updatedAt),
		UpdatedAt:       big.NewInt(updatedAt),
		AnsweredInRound: big.NewInt(10),
	}
}

func (f *fixture) withEthOracle(rd *chain.RoundData) {
	feed, _ := mainnet.Feed(mainnet.WETH)
	f.chain.rounds[feed] = rd
	f.chain.feedDecimals[feed] = 8
}

// V3 WETH->USDC quotes 2400 USDC at fee 500 only
func (f *fixture) withEthV3() {
	f.chain.v3Quote = func(in, out common.Address, fee uint32, amount *big.Int) (*big.Int, error) {
		if in == mainnet.WETH && out == mainnet.USDC && fee == 500 {
			return big.NewInt(2_400_000_000), nil
		}
		return nil, errRevert
	}
}

// ========== Shortcuts ==========

func TestGetPrice_WETHInETH_NoRPC(t *testing.T) {
	f := newFixture()

	info, err := f.prices.GetPrice(context.Background(), mainnet.WETH, domain.QuoteETH)
	require.NoError(t, err)

	assert.Equal(t, "1", info.Price)
	assert.Equal(t, domain.SourceAmmV3, info.Source)
	assert.Equal(t, domain.QuoteETH, info.QuoteCurrency)
	assert.Equal(t, "WETH", info.Token.Symbol)
	assert.Equal(t, uint64(fixedNow.Unix()), info.Timestamp)
	assert.Zero(t, f.chain.totalCalls())
}

func TestGetPrice_USDCInUSD_NoRPC(t *testing.T) {
	f := newFixture()

	info, err := f.prices.GetPrice(context.Background(), mainnet.USDC, domain.QuoteUSD)
	require.NoError(t, err)

	assert.Equal(t, "1", info.Price)
	assert.Equal(t, domain.SourceOracle, info.Source)
	assert.Equal(t, uint8(6), info.Token.Decimals)
	assert.Zero(t, f.chain.totalCalls())
}

// ========== Oracle ==========

func TestGetPrice_Oracle(t *testing.T) {
	f := newFixture()
	f.withEthOracle(ethUSDRound(fixedNow.Unix() - 60))

	info, err := f.prices.GetPrice(context.Background(), mainnet.WETH, domain.QuoteUSD)
	require.NoError(t, err)

	assert.Equal(t, "2500", info.Price)
	assert.Equal(t, domain.SourceOracle, info.Source)
	assert.Zero(t, f.chain.count("quoteExactInputSingle"))
}

func TestGetPrice_OracleFutureTimestampAccepted(t *testing.T) {
	f := newFixture()
	f.withEthOracle(ethUSDRound(fixedNow.Unix() + 30))

	info, err := f.prices.GetPrice(context.Background(), mainnet.WETH, domain.QuoteUSD)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceOracle, info.Source)
}

func TestGetPrice_OracleRejectedFallsBackToV3(t *testing.T) {
	tests := []struct {
		name  string
		round func() *chain.RoundData
	}{
		{
			name: "answered in earlier round",
			round: func() *chain.RoundData {
				rd := ethUSDRound(fixedNow.Unix() - 60)
				rd.AnsweredInRound = big.NewInt(9)
				return rd
			},
		},
		{
			name: "stale",
			round: func() *chain.RoundData {
				return ethUSDRound(fixedNow.Unix() - 7200)
			},
		},
		{
			name: "zero answer",
			round: func() *chain.RoundData {
				rd := ethUSDRound(fixedNow.Unix() - 60)
				rd.Answer = big.NewInt(0)
				return rd
			},
		},
		{
			name: "negative answer",
			round: func() *chain.RoundData {
				rd := ethUSDRound(fixedNow.Unix() - 60)
				rd.Answer = big.NewInt(-5)
				return rd
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.withEthOracle(tt.round())
			f.withEthV3()

			info, err := f.prices.GetPrice(context.Background(), mainnet.WETH, domain.QuoteUSD)
			require.NoError(t, err)

			assert.Equal(t, "2400", info.Price)
			assert.Equal(t, domain.SourceAmmV3, info.Source)
		})
	}
}

func TestOraclePrice_Errors(t *testing.T) {
	f := newFixture()
	feed, _ := mainnet.Feed(mainnet.WETH)

	rd := ethUSDRound(fixedNow.Unix() - 60)
	rd.AnsweredInRound = big.NewInt(9)
	f.withEthOracle(rd)

	_, err := f.prices.oraclePrice(context.Background(), feed)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPriceOracleInvalid)
	assert.Contains(t, err.Error(), "answeredInRound (9) < roundId (10)")

	f.withEthOracle(ethUSDRound(fixedNow.Unix() - 3601))
	_, err = f.prices.oraclePrice(context.Background(), feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3601 seconds ago (threshold: 3600)")

	// exactly at the threshold is still fresh
	f.withEthOracle(ethUSDRound(fixedNow.Unix() - 3600))
	price, err := f.prices.oraclePrice(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, "2500", price.String())
}

// ========== AMM ==========

func TestGetPrice_V3FirstSuccessfulTier(t *testing.T) {
	f := newFixture()
	f.chain.meta[linkAddr] = domain.TokenMetadata{Symbol: "LINK", Name: "ChainLink Token", Decimals: 18}

	var tiers []uint32
	f.chain.v3Quote = func(in, out common.Address, fee uint32, amount *big.Int) (*big.Int, error) {
		tiers = append(tiers, fee)
		assert.Equal(t, e18(1).String(), amount.String())
		switch fee {
		case 100:
			return big.NewInt(0), nil
		case 500:
			return big.NewInt(5_000_000_000_000_000), nil // 0.005 WETH
		default:
			return big.NewInt(9_000_000_000_000_000), nil
		}
	}

	info, err := f.prices.GetPrice(context.Background(), linkAddr, domain.QuoteETH)
	require.NoError(t, err)

	assert.Equal(t, "0.005", info.Price)
	assert.Equal(t, domain.SourceAmmV3, info.Source)
	assert.Equal(t, "LINK", info.Token.Symbol)
	assert.Equal(t, []uint32{100, 500}, tiers)
}

func TestGetPrice_V2Reserves(t *testing.T) {
	f := newFixture()

	// token0 is USDC, so reserves are flipped for UNI -> USDC
	f.chain.setPair(mainnet.UNI, mainnet.USDC, pairAddr)
	f.chain.token0[pairAddr] = mainnet.USDC
	f.chain.reserves[pairAddr] = [2]*big.Int{
		big.NewInt(5_000_000_000_000), // 5M USDC
		e18(1_000_000),                // 1M UNI
	}

	info, err := f.prices.GetPrice(context.Background(), mainnet.UNI, domain.QuoteUSD)
	require.NoError(t, err)

	assert.Equal(t, "5", info.Price)
	assert.Equal(t, domain.SourceAmmV2, info.Source)
	assert.Equal(t, 4, f.chain.count("quoteExactInputSingle"))
}

func TestV2Price_EmptyReserve(t *testing.T) {
	f := newFixture()
	f.chain.setPair(mainnet.UNI, mainnet.USDC, pairAddr)
	f.chain.token0[pairAddr] = mainnet.UNI
	f.chain.reserves[pairAddr] = [2]*big.Int{big.NewInt(0), big.NewInt(10)}

	_, err := f.prices.v2Price(context.Background(), mainnet.UNI, mainnet.USDC, 18, 6)
	assert.ErrorIs(t, err, apperr.ErrInsufficientLiquidity)
}

func TestGetPrice_NoSource(t *testing.T) {
	f := newFixture()

	_, err := f.prices.GetPrice(context.Background(), mainnet.UNI, domain.QuoteETH)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPoolNotFound)
	assert.Empty(t, f.sink.all())
}

// ========== Journal ==========

func TestGetPrice_Journaled(t *testing.T) {
	f := newFixture()
	f.withEthOracle(ethUSDRound(fixedNow.Unix() - 60))

	_, err := f.prices.GetPrice(context.Background(), mainnet.WETH, domain.QuoteUSD)
	require.NoError(t, err)

	recs := f.sink.all()
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.NotEmpty(t, rec.QuoteID)
	assert.Equal(t, domain.QuoteKindPrice, rec.Kind)
	assert.Equal(t, chain.ChainIDMainnet, rec.ChainID)
	assert.Equal(t, mainnet.WETH.Hex(), rec.TokenIn)
	assert.Equal(t, "USD", rec.TokenOut)
	assert.Equal(t, "1", rec.AmountIn)
	assert.Equal(t, "2500", rec.Price)
	assert.Equal(t, "chainlink", rec.Source)
	assert.True(t, rec.CreatedAt.Equal(fixedNow))
}
