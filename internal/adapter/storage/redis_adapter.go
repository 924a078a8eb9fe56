package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/seckill/internal/core/domain"
)

const (
	itemKeyPrefix = "item:"
	listKeyPrefix = "items:"
	defaultTTL    = 60 * time.Second
)

// RedisAdapter stores read-only item snapshots as JSON. Entries expire after
// ttl; nothing invalidates them on a purchase.
type RedisAdapter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, prefix string, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisAdapter{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisAdapter) GetItem(ctx context.Context, itemID int64) (*domain.Item, error) {
	var item domain.Item
	found, err := r.get(ctx, r.itemKey(itemID), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

func (r *RedisAdapter) PutItem(ctx context.Context, item domain.Item) error {
	return r.put(ctx, r.itemKey(item.ID), item)
}

func (r *RedisAdapter) GetItems(ctx context.Context, offset, limit int) ([]domain.Item, bool, error) {
	var items []domain.Item
	found, err := r.get(ctx, r.listKey(offset, limit), &items)
	if err != nil || !found {
		return nil, false, err
	}
	return items, true, nil
}

func (r *RedisAdapter) PutItems(ctx context.Context, offset, limit int, items []domain.Item) error {
	return r.put(ctx, r.listKey(offset, limit), items)
}

func (r *RedisAdapter) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (r *RedisAdapter) put(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(r.client.Set(ctx, key, data, r.ttl).Err(), "set %s", key)
}

func (r *RedisAdapter) itemKey(itemID int64) string {
	return r.prefix + itemKeyPrefix + strconv.FormatInt(itemID, 10)
}

func (r *RedisAdapter) listKey(offset, limit int) string {
	return r.prefix + listKeyPrefix + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
}
