package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token metadata from the registry; uniquely identified by (ChainID, Address)
type TokenEntry struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	ChainID  uint64         `json:"chain_id"`
}

// Descriptor embedded into results; Address is nil for the native asset
type TokenInfo struct {
	Address  *common.Address `json:"address,omitempty"`
	Symbol   string          `json:"symbol"`
	Decimals uint8           `json:"decimals"`
}

func NativeToken() TokenInfo {
	return TokenInfo{Symbol: "ETH", Decimals: 18}
}

func ERC20Token(addr common.Address, symbol string, decimals uint8) TokenInfo {
	return TokenInfo{Address: &addr, Symbol: symbol, Decimals: decimals}
}

type QuoteCurrency string

const (
	QuoteUSD QuoteCurrency = "USD"
	QuoteETH QuoteCurrency = "ETH"
)

// ParseQuoteCurrency is case-insensitive; empty input means USD.
func ParseQuoteCurrency(s string) (QuoteCurrency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "USD":
		return QuoteUSD, nil
	case "ETH":
		return QuoteETH, nil
	default:
		return "", apperr.Newf(apperr.KindParse, "invalid quote currency: %s. Use USD or ETH", s)
	}
}

// Closed set of price sources
type PriceSource int

const (
	SourceOracle PriceSource = iota + 1
	SourceAmmV2
	SourceAmmV3
)

func (s PriceSource) String() string {
	switch s {
	case SourceOracle:
		return "chainlink"
	case SourceAmmV2:
		return "uniswap_v2"
	case SourceAmmV3:
		return "uniswap_v3"
	default:
		return "unknown"
	}
}

func (s PriceSource) MarshalJSON() ([]byte, error) {
	if s < SourceOracle || s > SourceAmmV3 {
		return nil, fmt.Errorf("unknown price source %d", int(s))
	}
	return json.Marshal(s.String())
}

type PriceInfo struct {
	Token         TokenInfo     `json:"token"`
	Price         string        `json:"price"`
	QuoteCurrency QuoteCurrency `json:"quote_currency"`
	Source        PriceSource   `json:"source"`
	Timestamp     uint64        `json:"timestamp"`
}

type Protocol string

const (
	ProtocolV2 Protocol = "v2"
	ProtocolV3 Protocol = "v3"
)

// Caller-constructed swap request; Deadline 0 means "now + default"
type SwapParams struct {
	FromToken         common.Address
	ToToken           common.Address
	AmountIn          *big.Int
	SlippageTolerance decimal.Decimal // percent, 0.5 = 0.5%
	Deadline          uint64          // unix seconds
}

// Path actually chosen, not every path considered
type SwapRoute struct {
	Protocol Protocol `json:"protocol"`
	Path     []string `json:"path"`
	FeeTier  *uint32  `json:"fee_tier,omitempty"`
}

type TransactionData struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type SwapSimulationResult struct {
	QuoteID           string          `json:"quote_id"`
	SimulationSuccess bool            `json:"simulation_success"`
	SimulationError   *string         `json:"simulation_error,omitempty"`
	AmountIn          string          `json:"amount_in"`
	AmountOutExpected string          `json:"amount_out_expected"`
	AmountOutMinimum  string          `json:"amount_out_minimum"`
	PriceImpact       string          `json:"price_impact"`
	GasEstimate       string          `json:"gas_estimate"`
	GasPrice          string          `json:"gas_price"`
	GasCostEth        string          `json:"gas_cost_eth"`
	Route             SwapRoute       `json:"route"`
	Transaction       TransactionData `json:"transaction"`
}

type BalanceInfo struct {
	Address    string    `json:"address"`
	Token      TokenInfo `json:"token"`
	Balance    string    `json:"balance"`
	BalanceRaw string    `json:"balance_raw"`
}

// ERC-20 metadata read from chain (or registry)
type TokenMetadata struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}
