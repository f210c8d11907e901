package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/semaphore"
)

const DefaultTTL = 24 * time.Hour

var ErrNoFetcher = errors.New("token list fetcher is not configured")

// Snapshot is the persisted form of the registry contents
type Snapshot struct {
	UpdatedAt time.Time           `json:"updated_at"`
	Tokens    []domain.TokenEntry `json:"tokens"`
}

// Snapshotter persists the token list between restarts. Load returns nil, nil when nothing is stored.
type Snapshotter interface {
	LoadTokenList(ctx context.Context, chainID uint64) (*Snapshot, error)
	SaveTokenList(ctx context.Context, chainID uint64, snap *Snapshot, ttl time.Duration) error
}

type RefreshObserver interface {
	RegistryRefreshed(ok bool, tokens int)
}

type Options struct {
	ChainID  uint64
	TTL      time.Duration
	Fetcher  Fetcher
	Snapshot Snapshotter
	Observer RefreshObserver
	Now      func() time.Time

	// Contracts locates the mainnet fallback tokens; nil means chain.MainnetAddresses
	Contracts *chain.Addresses
}

type CacheStats struct {
	Tokens      int
	Age         time.Duration
	LastUpdated time.Time
}

// Registry maps symbols and addresses of one chain to token metadata.
// bySymbol and byAddress always hold the same set of entries.
type Registry struct {
	log      logger.Logger
	fetcher  Fetcher
	snapshot Snapshotter
	observer RefreshObserver
	chainID  uint64
	ttl      time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	bySymbol    map[string]domain.TokenEntry
	byAddress   map[common.Address]domain.TokenEntry
	lastUpdated time.Time

	// at most one refresh in flight
	gate *semaphore.Weighted
}

func New(log logger.Logger, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Registry{
		log:       log,
		fetcher:   opts.Fetcher,
		snapshot:  opts.Snapshot,
		observer:  opts.Observer,
		chainID:   opts.ChainID,
		ttl:       opts.TTL,
		now:       opts.Now,
		bySymbol:  make(map[string]domain.TokenEntry),
		byAddress: make(map[common.Address]domain.TokenEntry),
		gate:      semaphore.NewWeighted(1),
	}

	if opts.ChainID == chain.ChainIDMainnet {
		a := chain.MainnetAddresses()
		if opts.Contracts != nil {
			a = *opts.Contracts
		}
		r.seedMainnet(a)
	}

	return r
}

// seedMainnet keeps the core tokens resolvable while the remote list is unreachable
func (r *Registry) seedMainnet(a chain.Addresses) {
	seed := []domain.TokenEntry{
		{Address: a.WETH, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, ChainID: chain.ChainIDMainnet},
		{Address: a.USDC, Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: chain.ChainIDMainnet},
		{Address: a.WBTC, Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8, ChainID: chain.ChainIDMainnet},
		{Address: a.UNI, Symbol: "UNI", Name: "Uniswap", Decimals: 18, ChainID: chain.ChainIDMainnet},
	}

	r.mu.Lock()
	for _, e := range seed {
		r.insertLocked(e)
	}
	r.mu.Unlock()

	r.log.Infof("Pre-populated %d fallback tokens for mainnet", len(seed))
}

func symbolKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// insertLocked writes e into both indexes, evicting whatever either index previously
// paired with e's symbol or address. Caller holds mu.
func (r *Registry) insertLocked(e domain.TokenEntry) {
	key := symbolKey(e.Symbol)

	if old, ok := r.bySymbol[key]; ok && old.Address != e.Address {
		delete(r.byAddress, old.Address)
	}
	if old, ok := r.byAddress[e.Address]; ok && symbolKey(old.Symbol) != key {
		delete(r.bySymbol, symbolKey(old.Symbol))
	}

	r.bySymbol[key] = e
	r.byAddress[e.Address] = e
}

func (r *Registry) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdated.IsZero() || r.now().Sub(r.lastUpdated) > r.ttl
}

func (r *Registry) ensureFresh(ctx context.Context) error {
	if r.fetcher == nil || !r.stale() {
		return nil
	}

	if err := r.gate.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(apperr.KindTransport, "failed to acquire refresh gate", err)
	}
	defer r.gate.Release(1)

	// another caller may have refreshed while we waited
	if !r.stale() {
		return nil
	}

	_, err := r.refresh(ctx)
	return err
}

// Refresh reloads the token list unconditionally and returns the number of entries accepted
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return 0, apperr.Wrap(apperr.KindTransport, "failed to acquire refresh gate", err)
	}
	defer r.gate.Release(1)

	return r.refresh(ctx)
}

// refresh runs with the gate held
func (r *Registry) refresh(ctx context.Context) (int, error) {
	if r.fetcher == nil {
		return 0, ErrNoFetcher
	}

	r.log.Debugf("Refreshing token list for chain %d", r.chainID)

	list, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.observe(false, 0)
		return 0, err
	}

	entries := make([]domain.TokenEntry, 0, len(list.Tokens))
	var otherChain int
	for _, t := range list.Tokens {
		if t.ChainID != r.chainID {
			otherChain++
			continue
		}
		if !common.IsHexAddress(t.Address) {
			r.log.Warnf("Invalid token address %q for %s, skipping", t.Address, t.Symbol)
			continue
		}
		if symbolKey(t.Symbol) == "" {
			r.log.Warnf("Token %s has empty symbol, skipping", t.Address)
			continue
		}

		entries = append(entries, domain.TokenEntry{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
			ChainID:  t.ChainID,
		})
	}
	if otherChain > 0 {
		r.log.Debugf("Skipped %d tokens of other chains", otherChain)
	}

	r.mu.Lock()
	for _, e := range entries {
		r.insertLocked(e)
	}
	r.lastUpdated = r.now()
	total := len(r.bySymbol)
	r.mu.Unlock()

	r.log.Infof("Loaded %d tokens for chain %d", len(entries), r.chainID)
	r.observe(true, total)
	r.saveSnapshot(ctx)

	return len(entries), nil
}

func (r *Registry) observe(ok bool, total int) {
	if r.observer != nil {
		r.observer.RegistryRefreshed(ok, total)
	}
}

func (r *Registry) saveSnapshot(ctx context.Context) {
	if r.snapshot == nil {
		return
	}

	r.mu.RLock()
	snap := &Snapshot{UpdatedAt: r.lastUpdated, Tokens: r.sortedLocked()}
	r.mu.RUnlock()

	if err := r.snapshot.SaveTokenList(ctx, r.chainID, snap, r.ttl); err != nil {
		r.log.Warnf("Failed to save token list snapshot: %v", err)
	}
}

// Warm loads a persisted token list that is still within TTL
func (r *Registry) Warm(ctx context.Context) {
	if r.snapshot == nil {
		return
	}

	snap, err := r.snapshot.LoadTokenList(ctx, r.chainID)
	if err != nil {
		r.log.Warnf("Failed to load token list snapshot: %v", err)
		return
	}
	if snap == nil {
		return
	}
	if r.now().Sub(snap.UpdatedAt) > r.ttl {
		r.log.Debugf("Token list snapshot from %s is expired, ignoring", snap.UpdatedAt.Format(time.RFC3339))
		return
	}

	var loaded int
	r.mu.Lock()
	for _, e := range snap.Tokens {
		if e.ChainID != r.chainID || symbolKey(e.Symbol) == "" {
			continue
		}
		r.insertLocked(e)
		loaded++
	}
	if snap.UpdatedAt.After(r.lastUpdated) {
		r.lastUpdated = snap.UpdatedAt
	}
	r.mu.Unlock()

	r.log.Infof("Warmed token registry from snapshot, tokens=%d", loaded)
}

// ResolveSymbol looks a symbol up case-insensitively. A miss forces one refresh and a retry.
func (r *Registry) ResolveSymbol(ctx context.Context, symbol string) (domain.TokenEntry, bool) {
	key := symbolKey(symbol)
	if key == "" {
		return domain.TokenEntry{}, false
	}

	if err := r.ensureFresh(ctx); err != nil {
		r.log.Warnf("Failed to refresh token list: %v", err)
	}

	if e, ok := r.bySymbolKey(key); ok {
		return e, true
	}
	if r.fetcher == nil {
		return domain.TokenEntry{}, false
	}

	r.log.Infof("Token '%s' not found in cache, forcing refresh", symbol)
	if _, err := r.Refresh(ctx); err != nil {
		r.log.Warnf("Failed to refresh token list on cache miss: %v", err)
		return domain.TokenEntry{}, false
	}

	return r.bySymbolKey(key)
}

// LookupAddress is ResolveSymbol keyed by contract address
func (r *Registry) LookupAddress(ctx context.Context, addr common.Address) (domain.TokenEntry, bool) {
	if err := r.ensureFresh(ctx); err != nil {
		r.log.Warnf("Failed to refresh token list: %v", err)
	}

	if e, ok := r.byAddressKey(addr); ok {
		return e, true
	}
	if r.fetcher == nil {
		return domain.TokenEntry{}, false
	}

	r.log.Infof("Token address %s not found in cache, forcing refresh", addr.Hex())
	if _, err := r.Refresh(ctx); err != nil {
		r.log.Warnf("Failed to refresh token list on cache miss: %v", err)
		return domain.TokenEntry{}, false
	}

	return r.byAddressKey(addr)
}

// ListTokens returns every token of the configured chain sorted by symbol
func (r *Registry) ListTokens(ctx context.Context) []domain.TokenEntry {
	if err := r.ensureFresh(ctx); err != nil {
		r.log.Warnf("Failed to refresh token list: %v", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) Stats() CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := CacheStats{Tokens: len(r.bySymbol), LastUpdated: r.lastUpdated}
	if !r.lastUpdated.IsZero() {
		st.Age = r.now().Sub(r.lastUpdated)
	}
	return st
}

func (r *Registry) ChainID() uint64 {
	return r.chainID
}

func (r *Registry) bySymbolKey(key string) (domain.TokenEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bySymbol[key]
	return e, ok
}

func (r *Registry) byAddressKey(addr common.Address) (domain.TokenEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAddress[addr]
	return e, ok
}

func (r *Registry) sortedLocked() []domain.TokenEntry {
	out := make([]domain.TokenEntry, 0, len(r.bySymbol))
	for _, e := range r.bySymbol {
		if e.ChainID == r.chainID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return symbolKey(out[i].Symbol) < symbolKey(out[j].Symbol)
	})
	return out
}
