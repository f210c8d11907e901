package app

import (
	"strings"

	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/config"

	"github.com/ethereum/go-ethereum/common"
)

// contractAddresses applies config overrides on top of the mainnet set
func contractAddresses(cfg *config.ContractsConfig) (chain.Addresses, error) {
	a := chain.MainnetAddresses()

	overrides := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"weth", cfg.WETH, &a.WETH},
		{"usdc", cfg.USDC, &a.USDC},
		{"wbtc", cfg.WBTC, &a.WBTC},
		{"uni", cfg.UNI, &a.UNI},
		{"v2_router", cfg.V2Router, &a.V2Router},
		{"v2_factory", cfg.V2Factory, &a.V2Factory},
		{"v3_router", cfg.V3Router, &a.V3Router},
		{"v3_factory", cfg.V3Factory, &a.V3Factory},
		{"v3_quoter", cfg.V3Quoter, &a.V3Quoter},
	}
	for _, o := range overrides {
		if strings.TrimSpace(o.raw) == "" {
			continue
		}
		addr, err := parseContract(o.name, o.raw)
		if err != nil {
			return chain.Addresses{}, err
		}
		*o.dst = addr
	}

	if len(cfg.OracleFeeds) > 0 {
		feeds := make(map[common.Address]common.Address, len(cfg.OracleFeeds))
		for token, feed := range cfg.OracleFeeds {
			t, err := parseContract("oracle_feeds key", token)
			if err != nil {
				return chain.Addresses{}, err
			}
			f, err := parseContract("oracle_feeds["+token+"]", feed)
			if err != nil {
				return chain.Addresses{}, err
			}
			feeds[t] = f
		}
		a.OracleFeeds = feeds
	}

	if len(cfg.FeeTiers) > 0 {
		a.FeeTiers = append([]uint32(nil), cfg.FeeTiers...)
	}

	return a, nil
}

func parseContract(name, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperr.Newf(apperr.KindConfiguration, "invalid contract address for %s: %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}
