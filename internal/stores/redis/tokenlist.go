package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ethtrader/internal/registry"

	goredis "github.com/redis/go-redis/v9"
)

// TokenListStore keeps the registry snapshot under <prefix>tokenlist:<chainID>
type TokenListStore struct {
	rdb    goredis.Cmdable
	prefix string
}

var _ registry.Snapshotter = (*TokenListStore)(nil)

func NewTokenListStore(rdb goredis.Cmdable, prefix string) *TokenListStore {
	return &TokenListStore{rdb: rdb, prefix: prefix}
}

func (s *TokenListStore) key(chainID uint64) string {
	return fmt.Sprintf("%stokenlist:%d", s.prefix, chainID)
}

func (s *TokenListStore) LoadTokenList(ctx context.Context, chainID uint64) (*registry.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(chainID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", s.key(chainID), err)
	}

	var snap registry.Snapshot
	if err = json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode token list snapshot: %w", err)
	}
	return &snap, nil
}

func (s *TokenListStore) SaveTokenList(ctx context.Context, chainID uint64, snap *registry.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return nil
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode token list snapshot: %w", err)
	}

	if err = s.rdb.Set(ctx, s.key(chainID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", s.key(chainID), err)
	}
	return nil
}
