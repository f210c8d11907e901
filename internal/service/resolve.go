package service

import (
	"context"
	"strings"

	"ethtrader/internal/apperr"
	"ethtrader/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// MetadataReader is the TokenMetadata side of *BalanceService
type MetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) domain.TokenMetadata
}

// ResolveToken accepts a 0x address or a registry symbol; "ETH" means WETH.
// Unlisted addresses take their metadata from the token contract.
func ResolveToken(ctx context.Context, tokens TokenRegistry, meta MetadataReader, field, value string) (domain.TokenEntry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.TokenEntry{}, apperr.Newf(apperr.KindParse, "%s is required", field)
	}

	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		addr, err := domain.ParseAddress(value)
		if err != nil {
			return domain.TokenEntry{}, err
		}
		if e, ok := tokens.LookupAddress(ctx, addr); ok {
			return e, nil
		}
		m := meta.TokenMetadata(ctx, addr)
		return domain.TokenEntry{Address: addr, Symbol: m.Symbol, Name: m.Name, Decimals: m.Decimals}, nil
	}

	symbol := value
	if strings.EqualFold(symbol, "ETH") {
		symbol = "WETH"
	}
	e, ok := tokens.ResolveSymbol(ctx, symbol)
	if !ok {
		return domain.TokenEntry{}, apperr.Newf(apperr.KindTokenNotFound,
			"unknown %s symbol: '%s'. Token not found in token list", field, value)
	}
	return e, nil
}
