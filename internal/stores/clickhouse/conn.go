package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ethtrader/internal/config"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"
)

type Conn struct {
	Native ch.Conn
}

func New(ctx context.Context, log logger.Logger, cfg *config.ClickHouseConfig) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("clickhouse config cannot be nil")
	}
	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed parse DSN ch, error=%w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}

	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{
				Name:    "ethtrader",
				Version: "0.1.0",
			},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed Open ch, error=%w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed ping ch, error=%w", err)
	}

	// never log credentials from the DSN query
	log.Infof("Connected to clickhouse, url=%s", strings.Split(cfg.DSN, "?")[0])

	return &Conn{Native: conn}, nil
}

// EnsureSchema creates the quote journal table when it does not exist yet
func (c *Conn) EnsureSchema(ctx context.Context) error {
	return c.Native.Exec(ctx, createQuoteJournal)
}

func (c *Conn) Health(ctx context.Context) error {
	return c.Native.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.Native.Close()
}
