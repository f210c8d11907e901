package redis

import (
	"context"
	"fmt"

	"ethtrader/internal/config"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

type Client struct {
	*goredis.Client
	Prefix string
}

func New(ctx context.Context, log logger.Logger, cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Infof("Connected to redis, addr=%s db=%d", cfg.Addr, cfg.DB)

	return &Client{Client: rdb, Prefix: cfg.Prefix}, nil
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
