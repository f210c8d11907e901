package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuoteCurrency(t *testing.T) {
	cases := map[string]QuoteCurrency{
		"USD": QuoteUSD,
		"usd": QuoteUSD,
		"":    QuoteUSD,
		"ETH": QuoteETH,
		"eth": QuoteETH,
	}
	for in, want := range cases {
		got, err := ParseQuoteCurrency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseQuoteCurrency("INVALID")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrParse))
}

func TestPriceSource_JSON(t *testing.T) {
	b, err := json.Marshal(PriceInfo{Source: SourceAmmV3, QuoteCurrency: QuoteETH, Price: "1"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"source":"uniswap_v3"`)
	assert.Contains(t, string(b), `"quote_currency":"ETH"`)

	_, err = json.Marshal(PriceSource(0))
	assert.Error(t, err)
}

func TestTokenInfo(t *testing.T) {
	eth := NativeToken()
	assert.Equal(t, "ETH", eth.Symbol)
	assert.Equal(t, uint8(18), eth.Decimals)
	assert.Nil(t, eth.Address)

	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	info := ERC20Token(usdc, "USDC", 6)
	require.NotNil(t, info.Address)
	assert.Equal(t, usdc, *info.Address)
	assert.Equal(t, uint8(6), info.Decimals)
}

func TestSwapRoute_JSONOmitsFeeTierForV2(t *testing.T) {
	b, err := json.Marshal(SwapRoute{Protocol: ProtocolV2, Path: []string{"0xa", "0xb"}})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "fee_tier")

	fee := uint32(3000)
	b, err = json.Marshal(SwapRoute{Protocol: ProtocolV3, Path: []string{"0xa", "0xb"}, FeeTier: &fee})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"fee_tier":3000`)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2 ")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), addr)

	for _, bad := range []string{"", "0x123", "C02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xZZ2aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"} {
		_, err = ParseAddress(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, apperr.ErrInvalidAddress))
	}
}

func TestNewQuoteID_Unique(t *testing.T) {
	a, b := NewQuoteID(), NewQuoteID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
