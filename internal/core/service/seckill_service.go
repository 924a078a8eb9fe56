package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/core/token"
	"github.com/rl1809/seckill/internal/metrics"
	"github.com/rl1809/seckill/internal/port"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidPage  = errors.New("invalid page")

	// abort signals for the purchase unit of work
	ErrAlreadyPurchased = errors.New("already purchased")
	ErrSoldOut          = errors.New("sold out or sale closed")
)

const (
	pathTx        = "tx"
	pathProcedure = "procedure"
)

var tracer trace.Tracer = otel.Tracer("github.com/rl1809/seckill/internal/core/service")

type Options struct {
	MaxPageSize  int
	CacheTimeout time.Duration
	// LookupTimeout bounds a shared item or page read. It is independent of the
	// callers waiting on that read.
	LookupTimeout time.Duration
	QueueSize     int
	Clock         func() time.Time
}

type SeckillService struct {
	store     port.Store
	procedure port.PurchaseProcedure
	cache     port.CacheRepository
	tokens    *token.Codec
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	maxPageSize   int
	cacheTimeout  time.Duration
	lookupTimeout time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan domain.PurchaseRecord
	flights singleflight.Group
}

// NewSeckillService wires the engine. procedure may be nil, in which case the
// stored-procedure path reports internal errors.
func NewSeckillService(
	store port.Store,
	procedure port.PurchaseProcedure,
	cache port.CacheRepository,
	tokens *token.Codec,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts Options,
) *SeckillService {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 50
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 50 * time.Millisecond
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &SeckillService{
		store:        store,
		procedure:    procedure,
		cache:        cache,
		tokens:       tokens,
		metrics:      m,
		logger:       logger.With().Str("component", "seckill_service").Logger(),
		maxPageSize:   opts.MaxPageSize,
		cacheTimeout:  opts.CacheTimeout,
		lookupTimeout: opts.LookupTimeout,
		now:           opts.Clock,
		events:        make(chan domain.PurchaseRecord, opts.QueueSize),
	}
}

func (s *SeckillService) ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	if offset < 0 || limit <= 0 || limit > s.maxPageSize {
		return nil, errors.Wrapf(ErrInvalidPage, "offset %d limit %d", offset, limit)
	}

	ctx, span := tracer.Start(ctx, "SeckillService.ListItems",
		trace.WithAttributes(attribute.Int("seckill.offset", offset), attribute.Int("seckill.limit", limit)))
	defer span.End()

	if items, ok := s.cachedItems(ctx, offset, limit); ok {
		return items, nil
	}

	key := "list:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
	v, err := s.lookup(ctx, key, func(ctx context.Context) (interface{}, error) {
		items, err := s.store.Items().List(ctx, offset, limit)
		if err != nil {
			return nil, errors.Wrap(err, "list items")
		}
		if items == nil {
			items = []domain.Item{}
		}
		s.fillItems(ctx, offset, limit, items)
		return items, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	shared := v.([]domain.Item)
	items := make([]domain.Item, len(shared))
	copy(items, shared)
	return items, nil
}

func (s *SeckillService) GetItem(ctx context.Context, itemID int64) (*domain.Item, error) {
	if item := s.cachedItem(ctx, itemID); item != nil {
		return item, nil
	}

	v, err := s.lookup(ctx, "item:"+strconv.FormatInt(itemID, 10), func(ctx context.Context) (interface{}, error) {
		item, err := s.store.Items().FindByID(ctx, itemID)
		if err != nil {
			return nil, errors.Wrap(err, "find item")
		}
		if item == nil {
			return nil, ErrItemNotFound
		}
		s.fillItem(ctx, *item)
		return *item, nil
	})
	if err != nil {
		return nil, err
	}

	item := v.(domain.Item)
	return &item, nil
}

// lookup collapses concurrent reads of key into one. The shared read runs
// detached from every caller; each caller stops waiting when its own context ends.
func (s *SeckillService) lookup(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(detached, s.lookupTimeout)
		defer cancel()
		return fn(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), key)
	}
}

func (s *SeckillService) Expose(ctx context.Context, itemID int64) (domain.Exposure, error) {
	ctx, span := tracer.Start(ctx, "SeckillService.Expose")
	defer span.End()
	span.SetAttributes(attribute.Int64("seckill.item_id", itemID))

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return domain.Exposure{}, err
	}

	now := s.now()
	exposure := domain.Exposure{
		ItemID: itemID,
		Now:    now,
		Start:  item.StartTime,
		End:    item.EndTime,
	}

	switch {
	case now.Before(item.StartTime):
		exposure.State = domain.ExposureNotYetOpen
	case !now.Before(item.EndTime):
		exposure.State = domain.ExposureClosed
	default:
		exposure.State = domain.ExposureOpen
		exposure.Token = s.tokens.Derive(itemID)
	}

	s.metrics.ObserveExposure(exposure.State)
	span.SetAttributes(attribute.String("seckill.exposure", exposure.State.String()))
	return exposure, nil
}

// ExecutePurchase claims one unit of itemID for buyerID. The purchase record is
// inserted before the stock is decremented, both inside one transaction, so a
// duplicate buyer never contends for the item row.
func (s *SeckillService) ExecutePurchase(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	ctx, span := tracer.Start(ctx, "SeckillService.ExecutePurchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("seckill.item_id", itemID))

	started := time.Now()
	result := s.executePurchase(ctx, itemID, buyerID, accessToken)
	s.finish(pathTx, result, started)

	span.SetAttributes(attribute.String("seckill.state", result.State.String()))
	if result.State == domain.StateInternalError {
		span.SetStatus(codes.Error, "purchase failed")
	}
	return result
}

func (s *SeckillService) executePurchase(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	if !s.tokens.Verify(itemID, accessToken) {
		return domain.NewPurchaseResult(itemID, domain.StateTokenInvalid)
	}

	now := s.now()
	var record *domain.PurchaseRecord

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		inserted, err := tx.Purchases.InsertIfAbsent(ctx, itemID, buyerID, now)
		if err != nil {
			return errors.Wrap(err, "insert purchase")
		}
		if inserted == 0 {
			return ErrAlreadyPurchased
		}

		decremented, err := tx.Items.DecrementStock(ctx, itemID, now)
		if err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		if decremented == 0 {
			return ErrSoldOut
		}

		record, err = tx.Purchases.FindByKey(ctx, itemID, buyerID)
		if err != nil {
			return errors.Wrap(err, "read purchase")
		}
		if record == nil {
			return errors.New("purchase record missing after insert")
		}
		return nil
	})

	switch {
	case err == nil:
		return domain.NewSuccessResult(*record)
	case errors.Is(err, ErrAlreadyPurchased):
		return domain.NewPurchaseResult(itemID, domain.StateAlreadyPurchased)
	case errors.Is(err, ErrSoldOut):
		return domain.NewPurchaseResult(itemID, domain.StateSoldOut)
	default:
		s.logger.Error().Stack().Err(err).
			Int64("item_id", itemID).
			Str("buyer_id", buyerID).
			Msg("purchase rolled back")
		return domain.NewPurchaseResult(itemID, domain.StateInternalError)
	}
}

// ExecutePurchaseProcedure has the same observable behaviour as ExecutePurchase
// but runs the insert and decrement in the execute_seckill stored procedure.
func (s *SeckillService) ExecutePurchaseProcedure(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	ctx, span := tracer.Start(ctx, "SeckillService.ExecutePurchaseProcedure")
	defer span.End()
	span.SetAttributes(attribute.Int64("seckill.item_id", itemID))

	started := time.Now()
	result := s.executePurchaseProcedure(ctx, itemID, buyerID, accessToken)
	s.finish(pathProcedure, result, started)

	span.SetAttributes(attribute.String("seckill.state", result.State.String()))
	if result.State == domain.StateInternalError {
		span.SetStatus(codes.Error, "purchase failed")
	}
	return result
}

func (s *SeckillService) executePurchaseProcedure(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	if !s.tokens.Verify(itemID, accessToken) {
		return domain.NewPurchaseResult(itemID, domain.StateTokenInvalid)
	}

	log := s.logger.With().Int64("item_id", itemID).Str("buyer_id", buyerID).Logger()

	if s.procedure == nil {
		log.Error().Msg("purchase procedure not configured")
		return domain.NewPurchaseResult(itemID, domain.StateInternalError)
	}

	code, err := s.procedure.ExecutePurchase(ctx, itemID, buyerID, s.now())
	if err != nil {
		log.Error().Stack().Err(err).Msg("purchase procedure failed")
		return domain.NewPurchaseResult(itemID, domain.StateInternalError)
	}

	state := domain.StateOf(code)
	if state != domain.StateSuccess {
		if state == domain.StateInternalError {
			log.Error().Int("code", code).Msg("purchase procedure reported an error")
		}
		return domain.NewPurchaseResult(itemID, state)
	}

	record, err := s.store.Purchases().FindByKey(ctx, itemID, buyerID)
	if err != nil || record == nil {
		if err == nil {
			err = errors.New("purchase record missing after procedure")
		}
		log.Error().Stack().Err(err).Msg("read purchase after procedure")
		return domain.NewPurchaseResult(itemID, domain.StateInternalError)
	}
	return domain.NewSuccessResult(*record)
}

func (s *SeckillService) finish(path string, result domain.PurchaseResult, started time.Time) {
	s.metrics.ObservePurchase(path, result.State, time.Since(started))
	if result.State == domain.StateSuccess {
		s.enqueue(*result.Record)
	}
}

func (s *SeckillService) enqueue(record domain.PurchaseRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reason := "purchase event queue closed, event dropped"
	if !s.closed {
		select {
		case s.events <- record:
			return
		default:
			reason = "purchase event queue full, event dropped"
		}
	}

	s.metrics.PurchaseEvent("dropped")
	s.logger.Warn().
		Int64("item_id", record.ItemID).
		Str("buyer_id", record.BuyerID).
		Msg(reason)
}

// Events yields successful purchases after their transaction committed.
func (s *SeckillService) Events() <-chan domain.PurchaseRecord {
	return s.events
}

// Close stops event delivery. Purchases committed afterwards still succeed but
// their events are dropped.
func (s *SeckillService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
