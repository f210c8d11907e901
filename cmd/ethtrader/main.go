package main

import (
	"encoding/json"
	"log"
	"os"

	"ethtrader/internal/app"
	"ethtrader/internal/config"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/ethtrader/config.yaml"

var (
	flagConfig  string
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:           "ethtrader",
	Short:         "Ethereum price discovery and swap simulation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	// bare invocation runs the HTTP service
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (default $CONFIG or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("ethtrader failed, error=%v", err)
	}
}

func serve() error {
	cfg, err := loadCfg()
	if err != nil {
		return err
	}
	return app.Run(cfg)
}

func loadCfg() (*config.Config, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return nil, err
	}

	path := flagConfig
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	return config.Load(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
