package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/seckill/internal/core/domain"
)

const itemColumns = `item_id, name, stock, start_time, end_time, created_at`

type itemRepository struct {
	q sqlx.ExtContext
}

func (r *itemRepository) FindByID(ctx context.Context, itemID int64) (*domain.Item, error) {
	var item domain.Item
	err := sqlx.GetContext(ctx, r.q, &item,
		`SELECT `+itemColumns+` FROM seckill_item WHERE item_id = ?`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query item %d", itemID)
	}
	return &item, nil
}

func (r *itemRepository) DecrementStock(ctx context.Context, itemID int64, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE seckill_item
		SET stock = stock - 1
		WHERE item_id = ?
		  AND stock > 0
		  AND start_time <= ?
		  AND end_time > ?`,
		itemID, now, now,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "decrement stock of item %d", itemID)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return rows, nil
}

func (r *itemRepository) List(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	items := []domain.Item{}
	err := sqlx.SelectContext(ctx, r.q, &items,
		`SELECT `+itemColumns+` FROM seckill_item ORDER BY item_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	return items, nil
}
