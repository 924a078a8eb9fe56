package port

import (
	"context"

	"github.com/rl1809/seckill/internal/core/domain"
)

// CacheRepository holds read-only snapshots. It is never authoritative and
// takes no part in purchase decisions.
type CacheRepository interface {
	// GetItem returns nil, nil on a miss
	GetItem(ctx context.Context, itemID int64) (*domain.Item, error)

	PutItem(ctx context.Context, item domain.Item) error

	// GetItems returns the cached page for (offset, limit); found is false on a miss
	GetItems(ctx context.Context, offset, limit int) (items []domain.Item, found bool, err error)

	PutItems(ctx context.Context, offset, limit int, items []domain.Item) error
}
