package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"ethtrader/internal/api/http"
	"ethtrader/internal/api/http/handlers"
	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/config"
	"ethtrader/internal/metrics"
	"ethtrader/internal/pubsub/nats"
	"ethtrader/internal/registry"
	"ethtrader/internal/security"
	"ethtrader/internal/service"
	"ethtrader/internal/stores/clickhouse"
	"ethtrader/internal/stores/redis"
	"ethtrader/internal/wallet"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	app *App
	log logger.Logger

	// infra
	chain    *chain.Client
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *nats.Client

	// services
	wallet   *wallet.Wallet
	registry *registry.Registry
	balances *service.BalanceService
	prices   *service.PriceService
	swaps    *service.SwapService

	// servers
	httpSrv *http.Server

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Errors() <-chan error {
	return c.app.Errors()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func (c *Container) Logger() logger.Logger { return c.log }
func (c *Container) Wallet() *wallet.Wallet { return c.wallet }
func (c *Container) Registry() *registry.Registry { return c.registry }
func (c *Container) Balances() *service.BalanceService { return c.balances }
func (c *Container) Prices() *service.PriceService { return c.prices }
func (c *Container) Swaps() *service.SwapService { return c.swaps }

// Build constructs the whole object graph. The returned cleanup is safe to call after a failed Build.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, func() {}, err
	}

	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	c := &Container{log: lg}
	cleanup := func() { c.close() }

	profiler, err := metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope)
	if err != nil {
		return nil, cleanup, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	c.profiler = profiler
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	// Chain
	addrs, err := contractAddresses(&cfg.Ethereum.Contracts)
	if err != nil {
		return nil, cleanup, err
	}

	c.chain, err = chain.NewClient(ctx, lg, cfg.Ethereum.RPCURLs)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize chain client: %w", err)
	}
	if err = checkChainID(ctx, lg, c.chain, cfg.Ethereum.ChainID); err != nil {
		return nil, cleanup, err
	}
	lg.Infof("Successfully initialize chain client, endpoints=%d chain_id=%d", len(cfg.Ethereum.RPCURLs), cfg.Ethereum.ChainID)

	reader, err := chain.NewReader(c.chain, addrs)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize contract reader: %w", err)
	}

	// Wallet
	if cfg.Ethereum.PrivateKey != "" {
		c.wallet, err = wallet.FromPrivateKey(cfg.Ethereum.PrivateKey)
	} else {
		c.wallet, err = wallet.WatchOnly(cfg.Ethereum.WalletAddress)
	}
	if err != nil {
		return nil, cleanup, err
	}
	lg.Infof("Successfully initialize wallet, address=%s watch_only=%t", c.wallet.Address().Hex(), c.wallet.WatchOnly())

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Redis client
	var snapshot registry.Snapshotter
	if cfg.Stores.Redis.Enabled {
		c.redis, err = redis.New(ctx, lg, &cfg.Stores.Redis)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		if cfg.Tokens.Snapshot {
			snapshot = redis.NewTokenListStore(c.redis, c.redis.Prefix)
		}
		lg.Infof("Successfully initialize redis client, prefix=%s", c.redis.Prefix)
	}

	// Token registry
	c.registry = registry.New(lg, registry.Options{
		ChainID:   cfg.Ethereum.ChainID,
		TTL:       cfg.Tokens.TTL,
		Fetcher:   registry.NewHTTPFetcher(cfg.Tokens.ListURL, cfg.Tokens.FetchTimeout),
		Snapshot:  snapshot,
		Observer:  m,
		Contracts: &addrs,
	})
	c.registry.Warm(ctx)
	lg.Infof("Successfully initialize token registry, list=%s ttl=%s", cfg.Tokens.ListURL, cfg.Tokens.TTL)

	// Quote journal sinks
	var sinks []service.Recorder
	if cfg.Stores.ClickHouse.Enabled {
		c.ch, err = clickhouse.New(ctx, lg, &cfg.Stores.ClickHouse)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		if err = c.ch.EnsureSchema(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("failed to create clickhouse schema: %w", err)
		}
		c.chWriter = clickhouse.NewWriter(lg, c.ch.Native, cfg.Stores.ClickHouse)
		sinks = append(sinks, c.chWriter)
		lg.Info("Successfully initialize clickhouse writer")
	}
	if cfg.PubSub.NATS.Enabled {
		c.nc, err = nats.Connect(lg, &cfg.PubSub.NATS)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		sinks = append(sinks, nats.NewQuotePublisher(c.nc, cfg.PubSub.NATS.BroadcastPrefix))
		lg.Infof("Successfully initialize nats publisher, prefix=%s", cfg.PubSub.NATS.BroadcastPrefix)
	}
	journal := service.NewJournal(lg, m, sinks...)

	// Service layer
	c.balances = service.NewBalanceService(lg, reader, c.chain, c.registry, service.BalanceOptions{
		MetadataCacheSize: cfg.Tokens.MetadataCacheSize,
		MetadataCacheTTL:  cfg.Tokens.MetadataCacheTTL,
	})
	c.prices = service.NewPriceService(lg, reader, c.balances, journal, m, service.PriceOptions{
		ChainID:   cfg.Ethereum.ChainID,
		Staleness: cfg.Trading.OracleStaleness,
	})
	c.swaps = service.NewSwapService(lg, reader, c.chain, c.balances, journal, m, c.wallet.Address(), service.SwapOptions{
		ChainID:          cfg.Ethereum.ChainID,
		DefaultDeadline:  cfg.Trading.Deadline,
		GasLimitFallback: cfg.Trading.GasLimitFallback,
		GasPriceFallback: gweiToWei(cfg.Trading.GasPriceFallbackGwei),
	})
	lg.Info("Successfully initialize services")

	healthDeps := []service.Dependency{{Name: "ethereum", Check: c.chain}}
	if c.redis != nil {
		healthDeps = append(healthDeps, service.Dependency{Name: "redis", Check: c.redis})
	}
	if c.ch != nil {
		healthDeps = append(healthDeps, service.Dependency{Name: "clickhouse", Check: c.ch})
	}
	if c.nc != nil {
		healthDeps = append(healthDeps, service.Dependency{Name: "nats", Check: c.nc})
	}

	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize JWT verifier: %w", err)
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	// HTTP Server
	c.httpSrv, err = http.NewServer(&http.ServerDeps{
		Logger: lg,
		Cfg:    cfg,
		Handlers: handlers.Deps{
			Balances: c.balances,
			Prices:   c.prices,
			Swaps:    c.swaps,
			Tokens:   c.registry,
			Health:   service.NewHealthService(lg, healthDeps...),
			Limits: handlers.Limits{
				DefaultSlippage: cfg.Trading.DefaultSlippagePct(),
				MaxSlippage:     cfg.Trading.MaxSlippagePct(),
			},
		},
		Metrics:  m,
		Gatherer: reg,
		Redis:    c.redis,
		Verifier: verifier,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	lg.Info("Successfully initialize HTTP server")

	c.app = New(lg, c.httpSrv)

	lg.Info("Successfully initialize Wiring")
	return c, cleanup, nil
}

// close releases whatever Build managed to open, in reverse order
func (c *Container) close() {
	ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.chWriter != nil {
		if err := c.chWriter.Close(ctxClean); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
		}
	}
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
		}
	}
	if c.nc != nil {
		if err := c.nc.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF nats client: %v", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF redis client: %v", err)
		}
	}
	if c.chain != nil {
		c.chain.Close()
	}
	if c.profiler != nil {
		if err := c.profiler.Stop(); err != nil {
			c.log.Errorf("Failed to stop profiler: %v", err)
		}
	}

	c.log.Info("Successfully cleaned up dependency")
}

// checkChainID refuses to start against a node serving another chain; an unreachable node is only logged
func checkChainID(ctx context.Context, lg logger.Logger, cl *chain.Client, want uint64) error {
	got, err := cl.ChainID(ctx)
	if err != nil {
		lg.Warnf("Failed to read chain id from RPC, continuing: %v", err)
		return nil
	}
	if got != want {
		return apperr.Newf(apperr.KindConfiguration, "RPC serves chain %d, configured chain is %d", got, want)
	}
	return nil
}

func gweiToWei(gwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), big.NewInt(1_000_000_000))
}
