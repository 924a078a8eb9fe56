package service

import (
	"context"

	"github.com/rl1809/seckill/internal/core/domain"
)

const (
	lookupItem = "item"
	lookupList = "list"
)

// Cache failures degrade to a database read; they are never surfaced to callers.

func (s *SeckillService) cachedItem(ctx context.Context, itemID int64) *domain.Item {
	if s.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	item, err := s.cache.GetItem(ctx, itemID)
	switch {
	case err != nil:
		s.metrics.CacheLookup(lookupItem, "error")
		s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("item cache read failed")
		return nil
	case item == nil:
		s.metrics.CacheLookup(lookupItem, "miss")
		return nil
	default:
		s.metrics.CacheLookup(lookupItem, "hit")
		return item
	}
}

func (s *SeckillService) fillItem(ctx context.Context, item domain.Item) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()

	if err := s.cache.PutItem(ctx, item); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("item cache fill failed")
	}
}

func (s *SeckillService) cachedItems(ctx context.Context, offset, limit int) ([]domain.Item, bool) {
	if s.cache == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	items, found, err := s.cache.GetItems(ctx, offset, limit)
	switch {
	case err != nil:
		s.metrics.CacheLookup(lookupList, "error")
		s.logger.Warn().Err(err).Int("offset", offset).Int("limit", limit).Msg("list cache read failed")
		return nil, false
	case !found:
		s.metrics.CacheLookup(lookupList, "miss")
		return nil, false
	default:
		s.metrics.CacheLookup(lookupList, "hit")
		if items == nil {
			items = []domain.Item{}
		}
		return items, true
	}
}

func (s *SeckillService) fillItems(ctx context.Context, offset, limit int, items []domain.Item) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()

	if err := s.cache.PutItems(ctx, offset, limit, items); err != nil {
		s.logger.Warn().Err(err).Int("offset", offset).Int("limit", limit).Msg("list cache fill failed")
	}
}
