package pubsub

import (
	"context"

	"ethtrader/internal/domain"
)

const DefaultQuotePrefix = "ethtrader.quotes"

// Broadcaster is a fire-and-forget fan-out bus
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data any) error
	Health(ctx context.Context) error
}

// QuoteSubject is <prefix>.price or <prefix>.swap
func QuoteSubject(prefix string, kind domain.QuoteKind) string {
	if prefix == "" {
		prefix = DefaultQuotePrefix
	}
	return prefix + "." + string(kind)
}
