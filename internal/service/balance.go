package service

import (
	"context"
	"time"

	"ethtrader/internal/domain"
	"ethtrader/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gitlab.com/nevasik7/alerting/logger"
)

const (
	unknownSymbol   = "UNKNOWN"
	unknownName     = "Unknown Token"
	defaultDecimals = uint8(18)
)

type BalanceOptions struct {
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
}

// BalanceService reads holder balances and resolves token metadata for the other services
type BalanceService struct {
	log    logger.Logger
	chain  ChainReader
	node   ChainNode
	tokens TokenRegistry
	meta   *expirable.LRU[common.Address, domain.TokenMetadata]
}

func NewBalanceService(log logger.Logger, chain ChainReader, node ChainNode, tokens TokenRegistry, opts BalanceOptions) *BalanceService {
	if opts.MetadataCacheSize <= 0 {
		opts.MetadataCacheSize = 1024
	}
	if opts.MetadataCacheTTL <= 0 {
		opts.MetadataCacheTTL = time.Hour
	}

	return &BalanceService{
		log:    log,
		chain:  chain,
		node:   node,
		tokens: tokens,
		meta:   expirable.NewLRU[common.Address, domain.TokenMetadata](opts.MetadataCacheSize, nil, opts.MetadataCacheTTL),
	}
}

// GetBalance returns the native balance when token is nil, the ERC-20 balance otherwise
func (s *BalanceService) GetBalance(ctx context.Context, holder common.Address, token *common.Address) (*domain.BalanceInfo, error) {
	if token == nil {
		s.log.Debugf("Querying ETH balance, address=%s", holder.Hex())

		bal, err := s.node.BalanceAt(ctx, holder)
		if err != nil {
			return nil, err
		}
		return &domain.BalanceInfo{
			Address:    holder.Hex(),
			Token:      domain.NativeToken(),
			Balance:    units.FormatUnits(bal, 18),
			BalanceRaw: bal.String(),
		}, nil
	}

	s.log.Debugf("Querying ERC20 balance, address=%s token=%s", holder.Hex(), token.Hex())

	meta := s.TokenMetadata(ctx, *token)

	bal, err := s.chain.ERC20BalanceOf(ctx, *token, holder)
	if err != nil {
		return nil, err
	}

	return &domain.BalanceInfo{
		Address:    holder.Hex(),
		Token:      domain.ERC20Token(*token, meta.Symbol, meta.Decimals),
		Balance:    units.FormatUnits(bal, meta.Decimals),
		BalanceRaw: bal.String(),
	}, nil
}

// TokenMetadata never fails: registry first, then the token contract, then fixed fallbacks
func (s *BalanceService) TokenMetadata(ctx context.Context, token common.Address) domain.TokenMetadata {
	if m, ok := s.meta.Get(token); ok {
		return m
	}

	if e, ok := s.tokens.LookupAddress(ctx, token); ok {
		m := domain.TokenMetadata{Address: e.Address, Symbol: e.Symbol, Name: e.Name, Decimals: e.Decimals}
		s.meta.Add(token, m)
		return m
	}

	m := domain.TokenMetadata{Address: token, Symbol: unknownSymbol, Name: unknownName, Decimals: defaultDecimals}

	symbol, err := s.chain.ERC20Symbol(ctx, token)
	if err == nil {
		m.Symbol = symbol
	} else {
		s.log.Debugf("symbol() failed for %s: %v", token.Hex(), err)
	}

	name, err := s.chain.ERC20Name(ctx, token)
	if err == nil {
		m.Name = name
	} else {
		s.log.Debugf("name() failed for %s: %v", token.Hex(), err)
	}

	decimals, err := s.chain.ERC20Decimals(ctx, token)
	if err != nil {
		// a guessed scale is not worth remembering
		s.log.Warnf("decimals() failed for %s, assuming %d: %v", token.Hex(), defaultDecimals, err)
		return m
	}
	m.Decimals = decimals

	s.meta.Add(token, m)
	return m
}
