package main

import (
	"fmt"
	"time"

	"ethtrader/internal/security"

	"github.com/spf13/cobra"
)

func init() {
	var (
		ttl   time.Duration
		scope string
	)
	tokenCmd := &cobra.Command{
		Use:   "token <client-id>",
		Short: "Mint an RS256 API token with the configured private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}

			signer, err := security.NewRS256Signer(&cfg.Security.JWT)
			if err != nil {
				return err
			}

			tok, err := signer.Mint(args[0], ttl, scope)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&scope, "scope", "", "Space separated scopes")
	rootCmd.AddCommand(tokenCmd)
}
