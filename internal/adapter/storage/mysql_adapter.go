package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/port"
)

// procedureFailed is reported when execute_seckill leaves its OUT parameter unset.
const procedureFailed = int(domain.StateInternalError)

type MySQLAdapter struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

func NewMySQLAdapter(db *sqlx.DB, logger zerolog.Logger) *MySQLAdapter {
	return &MySQLAdapter{
		db:     db,
		logger: logger.With().Str("component", "mysql_adapter").Logger(),
	}
}

// WithinTx runs fn under READ COMMITTED. The conditional decrement takes the row
// lock itself, so no gap locks are needed.
func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Repositories) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.logger.Warn().Err(err).Msg("rollback failed")
		}
	}()

	if err := fn(ctx, port.Repositories{
		Items:     &itemRepository{q: tx},
		Purchases: &purchaseRepository{q: tx},
	}); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "commit tx")
}

func (m *MySQLAdapter) Items() port.ItemRepository {
	return &itemRepository{q: m.db}
}

func (m *MySQLAdapter) Purchases() port.PurchaseRepository {
	return &purchaseRepository{q: m.db}
}

// ExecutePurchase calls execute_seckill. The OUT parameter lives in a session
// variable, so the CALL and the SELECT must share one connection.
func (m *MySQLAdapter) ExecutePurchase(ctx context.Context, itemID int64, buyerID string, at time.Time) (int, error) {
	conn, err := m.db.Connx(ctx)
	if err != nil {
		return procedureFailed, errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `CALL execute_seckill(?, ?, ?, @r_result)`, itemID, buyerID, at); err != nil {
		return procedureFailed, errors.Wrap(err, "call execute_seckill")
	}

	var result sql.NullInt64
	if err := conn.GetContext(ctx, &result, `SELECT @r_result`); err != nil {
		return procedureFailed, errors.Wrap(err, "read execute_seckill result")
	}
	if !result.Valid {
		return procedureFailed, nil
	}
	return int(result.Int64), nil
}

// CreateItem inserts a new sale item and returns its id.
func (m *MySQLAdapter) CreateItem(ctx context.Context, item domain.Item) (int64, error) {
	res, err := m.db.NamedExecContext(ctx, `
		INSERT INTO seckill_item (name, stock, start_time, end_time)
		VALUES (:name, :stock, :start_time, :end_time)`, item)
	if err != nil {
		return 0, errors.Wrap(err, "insert item")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "item id")
	}
	return id, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return errors.Wrap(m.db.PingContext(ctx), "ping mysql")
}
