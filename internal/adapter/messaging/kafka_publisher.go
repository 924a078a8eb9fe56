package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/seckill/internal/core/domain"
)

const EventTypePurchased = "seckill.purchased"

// PurchaseEvent is the payload written for every committed purchase.
type PurchaseEvent struct {
	EventID     string    `json:"event_id"`
	ItemID      int64     `json:"item_id"`
	BuyerID     string    `json:"buyer_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func NewPurchaseEvent(record domain.PurchaseRecord) PurchaseEvent {
	return PurchaseEvent{
		EventID:     uuid.NewString(),
		ItemID:      record.ItemID,
		BuyerID:     record.BuyerID,
		PurchasedAt: record.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaPublisher keys messages by item id so one item's purchases stay on
// one partition.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

func (p *KafkaPublisher) PublishPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	event := NewPurchaseEvent(record)

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal purchase event")
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ItemID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypePurchased)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write purchase event %s", event.EventID)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Int64("item_id", event.ItemID).
		Msg("published purchase event")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return errors.Wrap(p.writer.Close(), "close kafka writer")
}
