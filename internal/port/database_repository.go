package port

import (
	"context"
	"time"

	"github.com/rl1809/seckill/internal/core/domain"
)

type ItemRepository interface {
	// FindByID returns nil, nil when the item does not exist
	FindByID(ctx context.Context, itemID int64) (*domain.Item, error)

	// DecrementStock removes one unit only if stock remains and now is inside the
	// sale window. It returns the number of rows affected (0 or 1).
	DecrementStock(ctx context.Context, itemID int64, now time.Time) (int64, error)

	// List pages through items ordered by id ascending
	List(ctx context.Context, offset, limit int) ([]domain.Item, error)
}

type PurchaseRepository interface {
	// InsertIfAbsent records a purchase for (itemID, buyerID). A duplicate pair
	// affects zero rows and is not an error.
	InsertIfAbsent(ctx context.Context, itemID int64, buyerID string, at time.Time) (int64, error)

	// FindByKey returns the record joined with its item, or nil, nil when absent
	FindByKey(ctx context.Context, itemID int64, buyerID string) (*domain.PurchaseRecord, error)
}

// Repositories are bound to a single transaction.
type Repositories struct {
	Items     ItemRepository
	Purchases PurchaseRepository
}

type Store interface {
	// WithinTx runs fn in one transaction: commit when fn returns nil, rollback otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error

	// Items and Purchases run outside any transaction.
	Items() ItemRepository
	Purchases() PurchaseRepository
}

type PurchaseProcedure interface {
	// ExecutePurchase runs the server-side purchase routine and returns its result code.
	ExecutePurchase(ctx context.Context, itemID int64, buyerID string, at time.Time) (int, error)
}
