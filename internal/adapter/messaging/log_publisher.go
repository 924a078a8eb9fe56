package messaging

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rl1809/seckill/internal/core/domain"
)

// LogPublisher stands in for a broker when none is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "log_publisher").Logger()}
}

func (p *LogPublisher) PublishPurchase(_ context.Context, record domain.PurchaseRecord) error {
	event := NewPurchaseEvent(record)
	p.logger.Info().
		Str("event_id", event.EventID).
		Str("event_type", EventTypePurchased).
		Int64("item_id", event.ItemID).
		Str("buyer_id", event.BuyerID).
		Time("purchased_at", event.PurchasedAt).
		Msg("purchase event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
