package main

import (
	"context"
	"strings"
	"time"

	"ethtrader/internal/app"
	"ethtrader/internal/apperr"
	"ethtrader/internal/domain"
	"ethtrader/internal/service"
	"ethtrader/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// withContainer builds the service graph for a one-shot command; the HTTP server is never started
func withContainer(parent context.Context, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	c, cleanup, err := app.Build(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

func init() {
	var quote string
	priceCmd := &cobra.Command{
		Use:   "price <token>",
		Short: "Price a token in USD or ETH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := domain.ParseQuoteCurrency(quote)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				tok, err := service.ResolveToken(ctx, c.Registry(), c.Balances(), "token", args[0])
				if err != nil {
					return err
				}
				p, err := c.Prices().GetPrice(ctx, tok.Address, q)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	priceCmd.Flags().StringVar(&quote, "quote", "USD", "Quote currency: USD|ETH")
	rootCmd.AddCommand(priceCmd)

	var token string
	balanceCmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the native or ERC-20 balance of an address (default: configured wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				holder := c.Wallet().Address()
				if len(args) == 1 {
					addr, err := domain.ParseAddress(args[0])
					if err != nil {
						return err
					}
					holder = addr
				}

				var tokenAddr *common.Address
				if t := strings.TrimSpace(token); t != "" && !strings.EqualFold(t, "ETH") {
					e, err := service.ResolveToken(ctx, c.Registry(), c.Balances(), "token", t)
					if err != nil {
						return err
					}
					tokenAddr = &e.Address
				}

				b, err := c.Balances().GetBalance(ctx, holder, tokenAddr)
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	balanceCmd.Flags().StringVar(&token, "token", "", "Token symbol or address; empty or ETH for the native balance")
	rootCmd.AddCommand(balanceCmd)

	var (
		slippage string
		deadline time.Duration
	)
	swapCmd := &cobra.Command{
		Use:   "swap <from> <to> <amount>",
		Short: "Simulate a swap from the configured wallet; nothing is broadcast",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slip, err := decimal.NewFromString(slippage)
			if err != nil {
				return apperr.Wrap(apperr.KindParse, "invalid --slippage", err)
			}

			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				from, err := service.ResolveToken(ctx, c.Registry(), c.Balances(), "from_token", args[0])
				if err != nil {
					return err
				}
				to, err := service.ResolveToken(ctx, c.Registry(), c.Balances(), "to_token", args[1])
				if err != nil {
					return err
				}

				amount, err := units.ParseUnits(args[2], from.Decimals)
				if err != nil {
					return err
				}

				p := domain.SwapParams{
					FromToken:         from.Address,
					ToToken:           to.Address,
					AmountIn:          amount,
					SlippageTolerance: slip,
				}
				if deadline > 0 {
					p.Deadline = uint64(time.Now().Add(deadline).Unix())
				}

				res, err := c.Swaps().SimulateSwap(ctx, p)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	swapCmd.Flags().StringVar(&slippage, "slippage", "0.5", "Slippage tolerance in percent")
	swapCmd.Flags().DurationVar(&deadline, "deadline", 0, "Deadline from now (default from config)")
	rootCmd.AddCommand(swapCmd)

	var refresh bool
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "List the token registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				if refresh {
					if _, err := c.Registry().Refresh(ctx); err != nil {
						return err
					}
				}
				list := c.Registry().ListTokens(ctx)
				return printJSON(map[string]any{"count": len(list), "tokens": list})
			})
		},
	}
	tokensCmd.Flags().BoolVar(&refresh, "refresh", false, "Force a token list download first")
	rootCmd.AddCommand(tokensCmd)
}
