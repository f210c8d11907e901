package domain

import (
	"strings"
	"time"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type QuoteKind string

const (
	QuoteKindPrice QuoteKind = "price"
	QuoteKindSwap  QuoteKind = "swap"
)

// Journal entry for every answered price/swap request (ClickHouse + NATS fan-out)
type QuoteRecord struct {
	QuoteID           string    `json:"quote_id"`
	Kind              QuoteKind `json:"kind"`
	ChainID           uint64    `json:"chain_id"`
	TokenIn           string    `json:"token_in"`
	TokenOut          string    `json:"token_out"`
	AmountIn          string    `json:"amount_in"`  // human readable
	AmountOut         string    `json:"amount_out"` // human readable
	Price             string    `json:"price,omitempty"`
	Source            string    `json:"source"` // chainlink|uniswap_v2|uniswap_v3|v2|v3
	FeeTier           uint32    `json:"fee_tier,omitempty"`
	PriceImpact       string    `json:"price_impact,omitempty"`
	SimulationSuccess bool      `json:"simulation_success"`
	CreatedAt         time.Time `json:"created_at"`
}

func NewQuoteID() string {
	return uuid.NewString()
}

// ParseAddress accepts 0x-prefixed 40 hex chars
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return common.Address{}, apperr.Newf(apperr.KindInvalidAddress, "invalid address: %s", s)
	}
	return common.HexToAddress(s), nil
}
