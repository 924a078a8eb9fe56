package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/seckill/internal/core/domain"
)

type purchaseRepository struct {
	q sqlx.ExtContext
}

// InsertIfAbsent relies on the (item_id, buyer_id) primary key. The no-op update
// on a duplicate reports zero affected rows because the driver does not set
// CLIENT_FOUND_ROWS.
func (r *purchaseRepository) InsertIfAbsent(ctx context.Context, itemID int64, buyerID string, at time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO seckill_purchase (item_id, buyer_id, created_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE item_id = item_id`,
		itemID, buyerID, at,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "insert purchase of item %d", itemID)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return rows, nil
}

func (r *purchaseRepository) FindByKey(ctx context.Context, itemID int64, buyerID string) (*domain.PurchaseRecord, error) {
	var record domain.PurchaseRecord
	err := sqlx.GetContext(ctx, r.q, &record, `
		SELECT
			p.item_id, p.buyer_id, p.created_at,
			i.item_id    AS "item.item_id",
			i.name       AS "item.name",
			i.stock      AS "item.stock",
			i.start_time AS "item.start_time",
			i.end_time   AS "item.end_time",
			i.created_at AS "item.created_at"
		FROM seckill_purchase p
		INNER JOIN seckill_item i ON i.item_id = p.item_id
		WHERE p.item_id = ? AND p.buyer_id = ?`,
		itemID, buyerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query purchase of item %d", itemID)
	}
	return &record, nil
}
