package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"ethtrader/internal/chain"
	"ethtrader/internal/domain"
	"ethtrader/internal/registry"
	"ethtrader/internal/testutil"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errRevert = errors.New("execution reverted")

	mainnet  = chain.MainnetAddresses()
	linkAddr = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
	wallet   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	fixedNow = time.Unix(1_700_000_000, 0)
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// ========== Chain reader fake ==========

type pairKey struct{ a, b common.Address }

type poolKey struct {
	a, b common.Address
	fee  uint32
}

type v2Encoded struct {
	amountIn, minOut *big.Int
	path             []common.Address
	to               common.Address
	deadline         *big.Int
}

type fakeChain struct {
	mu    sync.Mutex
	addrs chain.Addresses
	enc   *chain.Reader
	calls map[string]int

	rounds       map[common.Address]*chain.RoundData
	feedDecimals map[common.Address]uint8

	pairs      map[pairKey]common.Address
	reserves   map[common.Address][2]*big.Int
	token0     map[common.Address]common.Address
	amountsOut func(amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	pools   map[poolKey]common.Address
	v3Quote func(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)

	balances map[pairKey]*big.Int
	meta     map[common.Address]domain.TokenMetadata

	lastV3    *chain.ExactInputSingleParams
	lastV2    *v2Encoded
	encodeErr error
}

func newFakeChain() *fakeChain {
	addrs := chain.MainnetAddresses()
	enc, err := chain.NewReader(&fakeNode{}, addrs)
	if err != nil {
		panic(err)
	}

	return &fakeChain{
		addrs:        addrs,
		enc:          enc,
		calls:        make(map[string]int),
		rounds:       make(map[common.Address]*chain.RoundData),
		feedDecimals: make(map[common.Address]uint8),
		pairs:        make(map[pairKey]common.Address),
		reserves:     make(map[common.Address][2]*big.Int),
		token0:       make(map[common.Address]common.Address),
		pools:        make(map[poolKey]common.Address),
		balances:     make(map[pairKey]*big.Int),
		meta:         make(map[common.Address]domain.TokenMetadata),
	}
}

func (f *fakeChain) hit(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeChain) setPair(a, b, pair common.Address) {
	f.pairs[pairKey{a, b}] = pair
	f.pairs[pairKey{b, a}] = pair
}

func (f *fakeChain) setPool(a, b common.Address, fee uint32) {
	f.pools[poolKey{a, b, fee}] = poolAddr
	f.pools[poolKey{b, a, fee}] = poolAddr
}

func (f *fakeChain) Addresses() chain.Addresses { return f.addrs }

func (f *fakeChain) LatestRoundData(_ context.Context, feed common.Address) (*chain.RoundData, error) {
	f.hit("latestRoundData")
	rd, ok := f.rounds[feed]
	if !ok {
		return nil, errRevert
	}
	return rd, nil
}

func (f *fakeChain) FeedDecimals(_ context.Context, feed common.Address) (uint8, error) {
	f.hit("feedDecimals")
	d, ok := f.feedDecimals[feed]
	if !ok {
		return 0, errRevert
	}
	return d, nil
}

func (f *fakeChain) V2GetPair(_ context.Context, a, b common.Address) (common.Address, error) {
	f.hit("getPair")
	return f.pairs[pairKey{a, b}], nil
}

func (f *fakeChain) V2GetReserves(_ context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	f.hit("getReserves")
	r, ok := f.reserves[pair]
	if !ok {
		return nil, nil, errRevert
	}
	return r[0], r[1], nil
}

func (f *fakeChain) V2Token0(_ context.Context, pair common.Address) (common.Address, error) {
	f.hit("token0")
	t, ok := f.token0[pair]
	if !ok {
		return common.Address{}, errRevert
	}
	return t, nil
}

func (f *fakeChain) V2GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	f.hit("getAmountsOut")
	if f.amountsOut == nil {
		return nil, errRevert
	}
	return f.amountsOut(amountIn, path)
}

func (f *fakeChain) V3GetPool(_ context.Context, a, b common.Address, fee uint32) (common.Address, error) {
	f.hit("getPool")
	return f.pools[poolKey{a, b, fee}], nil
}

func (f *fakeChain) V3QuoteExactInputSingle(_ context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	f.hit("quoteExactInputSingle")
	if f.v3Quote == nil {
		return nil, errRevert
	}
	return f.v3Quote(tokenIn, tokenOut, fee, amountIn)
}

func (f *fakeChain) ERC20BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	f.hit("balanceOf")
	b, ok := f.balances[pairKey{token, holder}]
	if !ok {
		return nil, errRevert
	}
	return b, nil
}

func (f *fakeChain) ERC20Decimals(_ context.Context, token common.Address) (uint8, error) {
	f.hit("decimals")
	m, ok := f.meta[token]
	if !ok {
		return 0, errRevert
	}
	return m.Decimals, nil
}

func (f *fakeChain) ERC20Symbol(_ context.Context, token common.Address) (string, error) {
	f.hit("symbol")
	m, ok := f.meta[token]
	if !ok {
		return "", errRevert
	}
	return m.Symbol, nil
}

func (f *fakeChain) ERC20Name(_ context.Context, token common.Address) (string, error) {
	f.hit("name")
	m, ok := f.meta[token]
	if !ok {
		return "", errRevert
	}
	return m.Name, nil
}

func (f *fakeChain) EncodeV3ExactInputSingle(p chain.ExactInputSingleParams) ([]byte, error) {
	f.mu.Lock()
	f.lastV3 = &p
	f.mu.Unlock()
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.enc.EncodeV3ExactInputSingle(p)
}

func (f *fakeChain) EncodeV2SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.lastV2 = &v2Encoded{amountIn: amountIn, minOut: amountOutMin, path: path, to: to, deadline: deadline}
	f.mu.Unlock()
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.enc.EncodeV2SwapExactTokensForTokens(amountIn, amountOutMin, path, to, deadline)
}

// ========== Node fake ==========

type fakeNode struct {
	mu sync.Mutex

	balance    *big.Int
	balanceErr error

	callErr  error
	lastCall *ethereum.CallMsg

	gas      uint64
	gasErr   error
	price    *big.Int
	priceErr error
}

func (n *fakeNode) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	if n.balanceErr != nil {
		return nil, n.balanceErr
	}
	return n.balance, nil
}

func (n *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	n.mu.Lock()
	n.lastCall = &msg
	n.mu.Unlock()
	if n.callErr != nil {
		return nil, n.callErr
	}
	return []byte{}, nil
}

func (n *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if n.gasErr != nil {
		return 0, n.gasErr
	}
	return n.gas, nil
}

func (n *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	if n.priceErr != nil {
		return nil, n.priceErr
	}
	return n.price, nil
}

// ========== Journal sink fake ==========

type memSink struct {
	mu      sync.Mutex
	name    string
	err     error
	records []domain.QuoteRecord
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Record(_ context.Context, rec *domain.QuoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return s.err
}

func (s *memSink) all() []domain.QuoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.QuoteRecord(nil), s.records...)
}

// ========== Fixture ==========

type fixture struct {
	chain    *fakeChain
	node     *fakeNode
	sink     *memSink
	tokens   *registry.Registry
	balances *BalanceService
	prices   *PriceService
	swaps    *SwapService
}

func newFixture() *fixture {
	log := testutil.NewLogger()

	fc := newFakeChain()
	node := &fakeNode{}
	sink := &memSink{name: "mem"}
	tokens := registry.New(log, registry.Options{ChainID: chain.ChainIDMainnet})
	journal := NewJournal(log, nil, sink)
	now := func() time.Time { return fixedNow }

	balances := NewBalanceService(log, fc, node, tokens, BalanceOptions{})

	return &fixture{
		chain:    fc,
		node:     node,
		sink:     sink,
		tokens:   tokens,
		balances: balances,
		prices: NewPriceService(log, fc, balances, journal, nil, PriceOptions{
			ChainID:   chain.ChainIDMainnet,
			Staleness: time.Hour,
			Now:       now,
		}),
		swaps: NewSwapService(log, fc, node, balances, journal, nil, wallet, SwapOptions{
			ChainID: chain.ChainIDMainnet,
			Now:     now,
		}),
	}
}
