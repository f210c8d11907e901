package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ethtrader/internal/apperr"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ethereum  EthereumConfig  `yaml:"ethereum"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Trading   TradingConfig   `yaml:"trading"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// ContractsConfig overrides the built-in mainnet addresses; empty fields keep the default
type ContractsConfig struct {
	WETH        string            `yaml:"weth"`
	USDC        string            `yaml:"usdc"`
	WBTC        string            `yaml:"wbtc"`
	UNI         string            `yaml:"uni"`
	V2Router    string            `yaml:"v2_router"`
	V2Factory   string            `yaml:"v2_factory"`
	V3Router    string            `yaml:"v3_router"`
	V3Factory   string            `yaml:"v3_factory"`
	V3Quoter    string            `yaml:"v3_quoter"`
	FeeTiers    []uint32          `yaml:"fee_tiers"`
	OracleFeeds map[string]string `yaml:"oracle_feeds"` // token address -> aggregator address
}

type EthereumConfig struct {
	RPCURLs       []string        `yaml:"rpc_urls"`
	ChainID       uint64          `yaml:"chain_id"`
	PrivateKey    string          `yaml:"private_key"`
	WalletAddress string          `yaml:"wallet_address"`
	Contracts     ContractsConfig `yaml:"contracts"`
}

type TokensConfig struct {
	ListURL           string        `yaml:"list_url"`
	TTL               time.Duration `yaml:"ttl"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	Snapshot          bool          `yaml:"snapshot"`
	MetadataCacheSize int           `yaml:"metadata_cache_size"`
	MetadataCacheTTL  time.Duration `yaml:"metadata_cache_ttl"`
}

type TradingConfig struct {
	OracleStaleness      time.Duration `yaml:"oracle_staleness"`
	DefaultSlippage      string        `yaml:"default_slippage"` // percent
	MaxSlippage          string        `yaml:"max_slippage"`     // percent
	Deadline             time.Duration `yaml:"deadline"`
	GasLimitFallback     uint64        `yaml:"gas_limit_fallback"`
	GasPriceFallbackGwei uint64        `yaml:"gas_price_fallback_gwei"`
}

func (t TradingConfig) DefaultSlippagePct() decimal.Decimal {
	return decimal.RequireFromString(t.DefaultSlippage)
}

func (t TradingConfig) MaxSlippagePct() decimal.Decimal {
	return decimal.RequireFromString(t.MaxSlippage)
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"` // tokens added every second
	Burst        int           `yaml:"burst"`          // bucket size
	TTL          time.Duration `yaml:"ttl"`            // idle key expiry
}

type RateLimitConfig struct {
	Enabled bool       `yaml:"enabled"`
	ByJWT   RateBucket `yaml:"by_jwt"`
	ByIP    RateBucket `yaml:"by_ip"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Prometheus bool            `yaml:"prometheus"`
	Pyroscope  PyroscopeConfig `yaml:"pyroscope"`
}

// LoadDotEnv loads .env files into the process environment; a missing file is not an error
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty), then applies env overrides and defaults
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ETHEREUM_RPC_URL"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		c.Ethereum.RPCURLs = urls
	}
	if v := os.Getenv("ETHEREUM_PRIVATE_KEY"); v != "" {
		c.Ethereum.PrivateKey = v
	}
	if v := os.Getenv("ETHEREUM_WALLET_ADDRESS"); v != "" {
		c.Ethereum.WalletAddress = v
	}
	if v := os.Getenv("ETHEREUM_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return apperr.Wrap(apperr.KindConfiguration, "invalid ETHEREUM_CHAIN_ID", err)
		}
		c.Ethereum.ChainID = id
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.API.HTTP.Addr = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.App.InstanceID = host
		}
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Ethereum.ChainID == 0 {
		c.Ethereum.ChainID = 1
	}

	if c.Tokens.ListURL == "" {
		c.Tokens.ListURL = "https://tokens.uniswap.org"
	}
	if c.Tokens.TTL == 0 {
		c.Tokens.TTL = 24 * time.Hour
	}
	if c.Tokens.FetchTimeout == 0 {
		c.Tokens.FetchTimeout = 30 * time.Second
	}
	if c.Tokens.MetadataCacheSize == 0 {
		c.Tokens.MetadataCacheSize = 1024
	}
	if c.Tokens.MetadataCacheTTL == 0 {
		c.Tokens.MetadataCacheTTL = time.Hour
	}

	if c.Trading.OracleStaleness == 0 {
		c.Trading.OracleStaleness = time.Hour
	}
	if c.Trading.DefaultSlippage == "" {
		c.Trading.DefaultSlippage = "0.5"
	}
	if c.Trading.MaxSlippage == "" {
		c.Trading.MaxSlippage = "50"
	}
	if c.Trading.Deadline == 0 {
		c.Trading.Deadline = 1200 * time.Second
	}
	if c.Trading.GasLimitFallback == 0 {
		c.Trading.GasLimitFallback = 200_000
	}
	if c.Trading.GasPriceFallbackGwei == 0 {
		c.Trading.GasPriceFallbackGwei = 30
	}

	if c.RateLimit.ByIP.RefillPerSec == 0 {
		c.RateLimit.ByIP = RateBucket{RefillPerSec: 10, Burst: 20}
	}
	if c.RateLimit.ByJWT.RefillPerSec == 0 {
		c.RateLimit.ByJWT = RateBucket{RefillPerSec: 50, Burst: 100}
	}

	if c.Stores.Redis.Prefix == "" {
		c.Stores.Redis.Prefix = "ethtrader:"
	}
	if c.Stores.ClickHouse.Writer.BatchMaxRows == 0 {
		c.Stores.ClickHouse.Writer.BatchMaxRows = 1000
	}
	if c.Stores.ClickHouse.Writer.BatchMaxInterval == 0 {
		c.Stores.ClickHouse.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if c.Stores.ClickHouse.Writer.MaxRetries == 0 {
		c.Stores.ClickHouse.Writer.MaxRetries = 3
	}
	if c.Stores.ClickHouse.Writer.RetryBackoff == 0 {
		c.Stores.ClickHouse.Writer.RetryBackoff = 100 * time.Millisecond
	}

	if c.PubSub.NATS.BroadcastPrefix == "" {
		c.PubSub.NATS.BroadcastPrefix = "ethtrader.quotes"
	}

	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 60 * time.Second
	}
	if c.API.HTTP.IdleTimeout == 0 {
		c.API.HTTP.IdleTimeout = 120 * time.Second
	}

	if c.Metrics.Pyroscope.AppName == "" {
		c.Metrics.Pyroscope.AppName = "ethtrader"
	}
}

// Validate reports the first setting the service cannot start without
func (c *Config) Validate() error {
	if len(c.Ethereum.RPCURLs) == 0 {
		return apperr.New(apperr.KindConfiguration, "at least one RPC URL is required (ETHEREUM_RPC_URL)")
	}
	if c.Ethereum.ChainID == 0 {
		return apperr.New(apperr.KindConfiguration, "chain id must be positive")
	}
	if strings.TrimSpace(c.Ethereum.PrivateKey) == "" && strings.TrimSpace(c.Ethereum.WalletAddress) == "" {
		return apperr.New(apperr.KindConfiguration, "either ETHEREUM_PRIVATE_KEY or ETHEREUM_WALLET_ADDRESS is required")
	}
	if c.Trading.OracleStaleness <= 0 {
		return apperr.New(apperr.KindConfiguration, "oracle staleness threshold must be positive")
	}

	def, err := decimal.NewFromString(c.Trading.DefaultSlippage)
	if err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "invalid default_slippage", err)
	}
	maxSlip, err := decimal.NewFromString(c.Trading.MaxSlippage)
	if err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "invalid max_slippage", err)
	}
	if def.IsNegative() || maxSlip.LessThan(def) || maxSlip.GreaterThan(decimal.NewFromInt(100)) {
		return apperr.Newf(apperr.KindConfiguration, "slippage bounds out of range: default=%s max=%s", def, maxSlip)
	}

	if c.Stores.ClickHouse.Enabled && c.Stores.ClickHouse.DSN == "" {
		return apperr.New(apperr.KindConfiguration, "clickhouse is enabled but dsn is empty")
	}
	if c.PubSub.NATS.Enabled && c.PubSub.NATS.URL == "" {
		return apperr.New(apperr.KindConfiguration, "nats is enabled but url is empty")
	}
	if c.Security.JWT.Enabled && c.Security.JWT.PublicKeyPath == "" {
		return apperr.New(apperr.KindConfiguration, "jwt is enabled but public_key_path is empty")
	}
	if (c.RateLimit.Enabled || c.Tokens.Snapshot) && !c.Stores.Redis.Enabled {
		return apperr.New(apperr.KindConfiguration, "rate limit and token snapshot require redis")
	}

	return nil
}
