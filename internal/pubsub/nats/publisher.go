package nats

import (
	"context"

	"ethtrader/internal/domain"
	"ethtrader/internal/pubsub"
)

// QuotePublisher broadcasts every journaled quote on its kind's subject
type QuotePublisher struct {
	bc     pubsub.Broadcaster
	prefix string
}

var _ pubsub.Broadcaster = (*Client)(nil)

func NewQuotePublisher(bc pubsub.Broadcaster, prefix string) *QuotePublisher {
	if prefix == "" {
		prefix = pubsub.DefaultQuotePrefix
	}
	return &QuotePublisher{bc: bc, prefix: prefix}
}

func (p *QuotePublisher) Name() string {
	return "nats"
}

func (p *QuotePublisher) Subject(kind domain.QuoteKind) string {
	return pubsub.QuoteSubject(p.prefix, kind)
}

func (p *QuotePublisher) Record(ctx context.Context, rec *domain.QuoteRecord) error {
	return p.bc.Publish(ctx, p.Subject(rec.Kind), rec)
}
