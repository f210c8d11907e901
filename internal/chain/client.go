package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrNoEndpoints = errors.New("no RPC URLs provided")

// Client is the chain RPC adapter: a pool of ethclient connections with round-robin failover
type Client struct {
	log     logger.Logger
	clients []*ethclient.Client
	index   uint64
	mu      sync.RWMutex

	gasPriceTimeout time.Duration

	chainMu sync.Mutex
	chainID uint64 // 0 until the first successful eth_chainId
}

func NewClient(ctx context.Context, log logger.Logger, rpcURLs []string) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, ErrNoEndpoints
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clients := make([]*ethclient.Client, 0, len(rpcURLs))
	for _, url := range rpcURLs {
		cl, err := ethclient.DialContext(dialCtx, url)
		if err != nil {
			log.Warnf("Failed to connect to RPC endpoint, skipping: %v", err)
			continue
		}
		clients = append(clients, cl)
	}

	if len(clients) == 0 {
		return nil, apperr.New(apperr.KindConfiguration, "failed to connect to any RPC endpoint")
	}

	return newClient(log, clients), nil
}

func newClient(log logger.Logger, clients []*ethclient.Client) *Client {
	return &Client{
		log:             log,
		clients:         clients,
		gasPriceTimeout: 10 * time.Second,
	}
}

// executeWithFailover runs fn against the pool round-robin until one endpoint answers.
// JSON-RPC error replies (reverts, bad params) come from the node itself and are returned without failover.
func (c *Client) executeWithFailover(ctx context.Context, operation string, fn func(*ethclient.Client) error) error {
	c.mu.RLock()
	clients := c.clients
	c.mu.RUnlock()

	if len(clients) == 0 {
		return apperr.Newf(apperr.KindChainRPC, "no RPC clients available for %s", operation)
	}

	var lastErr error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.KindChainRPC, operation, err)
		}

		idx := atomic.AddUint64(&c.index, 1) - 1
		cl := clients[idx%uint64(len(clients))]
		if cl == nil {
			continue
		}

		err := fn(cl)
		if err == nil {
			return nil
		}

		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return apperr.Wrap(apperr.KindChainRPC, operation, err)
		}

		lastErr = err
		c.log.Warnf("RPC operation %s failed on attempt %d, trying next endpoint: %v", operation, attempt+1, err)
	}

	return apperr.Wrap(apperr.KindChainRPC, fmt.Sprintf("%s failed after trying %d endpoints", operation, len(clients)), lastErr)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.executeWithFailover(ctx, "eth_call", func(cl *ethclient.Client) error {
		var innerErr error
		out, innerErr = cl.CallContract(ctx, msg, nil)
		return innerErr
	})
	return out, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.executeWithFailover(ctx, "eth_estimateGas", func(cl *ethclient.Client) error {
		var innerErr error
		gas, innerErr = cl.EstimateGas(ctx, msg)
		return innerErr
	})
	return gas, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.executeWithFailover(ctx, "eth_gasPrice", func(cl *ethclient.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, c.gasPriceTimeout)
		defer cancel()
		var innerErr error
		price, innerErr = cl.SuggestGasPrice(callCtx)
		return innerErr
	})
	return price, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.executeWithFailover(ctx, "eth_getBalance", func(cl *ethclient.Client) error {
		var innerErr error
		balance, innerErr = cl.BalanceAt(ctx, account, nil)
		return innerErr
	})
	return balance, err
}

// LatestBlockTimestamp returns the head block time in unix seconds
func (c *Client) LatestBlockTimestamp(ctx context.Context) (uint64, error) {
	var ts uint64
	err := c.executeWithFailover(ctx, "eth_getBlockByNumber", func(cl *ethclient.Client) error {
		header, innerErr := cl.HeaderByNumber(ctx, nil)
		if innerErr != nil {
			return innerErr
		}
		ts = header.Time
		return nil
	})
	return ts, err
}

// ChainID is fetched once; concurrent first callers wait for the same answer.
// A failed lookup is not memoised.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != 0 {
		return c.chainID, nil
	}

	var id *big.Int
	err := c.executeWithFailover(ctx, "eth_chainId", func(cl *ethclient.Client) error {
		var innerErr error
		id, innerErr = cl.ChainID(ctx)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, apperr.Newf(apperr.KindNumericOverflow, "chain id %s exceeds uint64", id)
	}

	c.chainID = id.Uint64()
	return c.chainID, nil
}

// Health checks that at least one endpoint serves the head block
func (c *Client) Health(ctx context.Context) error {
	_, err := c.LatestBlockTimestamp(ctx)
	return err
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cl := range c.clients {
		if cl != nil {
			cl.Close()
		}
	}
	c.clients = nil
}
