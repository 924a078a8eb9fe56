package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/metrics"
	"github.com/rl1809/seckill/internal/port"
)

// EventDispatcher drains committed purchases to a publisher. Delivery is at
// most once: a failed publish is logged and counted, never retried.
type EventDispatcher struct {
	publisher port.PurchasePublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	timeout   time.Duration
}

func NewEventDispatcher(publisher port.PurchasePublisher, m *metrics.Metrics, logger zerolog.Logger, timeout time.Duration) *EventDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventDispatcher{
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "event_dispatcher").Logger(),
		timeout:   timeout,
	}
}

// Run starts workers consuming queue until it is closed. The returned func
// blocks until every worker has exited.
func (d *EventDispatcher) Run(queue <-chan domain.PurchaseRecord, workers int) (wait func()) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.workerLoop(id, queue)
		}(i)
	}
	d.logger.Info().Int("workers", workers).Msg("event workers started")

	return wg.Wait
}

func (d *EventDispatcher) workerLoop(id int, queue <-chan domain.PurchaseRecord) {
	for record := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)

		if err := d.publisher.PublishPurchase(ctx, record); err != nil {
			d.metrics.PurchaseEvent("failed")
			d.logger.Error().Err(err).
				Int("worker", id).
				Int64("item_id", record.ItemID).
				Str("buyer_id", record.BuyerID).
				Msg("publish purchase event")
		} else {
			d.metrics.PurchaseEvent("published")
		}

		cancel()
	}
}
