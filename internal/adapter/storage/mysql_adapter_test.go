package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/port"
)

var migrateOnce sync.Once

func getMySQLDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/seckill?parseTime=true"
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	var migrateErr error
	migrateOnce.Do(func() {
		migrateErr = Migrate(dsn, MigrateUp, zerolog.Nop())
	})
	require.NoError(t, migrateErr)

	return db
}

func seedItem(t *testing.T, adapter *MySQLAdapter, stock int, start, end time.Time) int64 {
	t.Helper()
	id, err := adapter.CreateItem(context.Background(), domain.Item{
		Name:      "test item",
		Stock:     stock,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return id
}

func openWindow() (time.Time, time.Time, time.Time) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return now, now.Add(-time.Hour), now.Add(time.Hour)
}

func TestMySQLAdapter_PurchaseProtocol(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db, zerolog.Nop())
	now, start, end := openWindow()
	itemID := seedItem(t, adapter, 2, start, end)

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		inserted, err := tx.Purchases.InsertIfAbsent(ctx, itemID, "buyer-1", now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inserted)

		decremented, err := tx.Items.DecrementStock(ctx, itemID, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), decremented)
		return nil
	})
	require.NoError(t, err)

	item, err := adapter.Items().FindByID(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Stock)

	inserted, err := adapter.Purchases().InsertIfAbsent(ctx, itemID, "buyer-1", now)
	require.NoError(t, err)
	assert.Zero(t, inserted, "duplicate purchase must affect no rows")

	record, err := adapter.Purchases().FindByKey(ctx, itemID, "buyer-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, itemID, record.ItemID)
	assert.Equal(t, itemID, record.Item.ID)
	assert.Equal(t, "test item", record.Item.Name)
	assert.True(t, now.Equal(record.CreatedAt))
}

func TestMySQLAdapter_RollbackOnError(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db, zerolog.Nop())
	now, start, end := openWindow()
	itemID := seedItem(t, adapter, 0, start, end)

	abort := errors.New("sold out")
	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		if _, err := tx.Purchases.InsertIfAbsent(ctx, itemID, "buyer-1", now); err != nil {
			return err
		}
		decremented, err := tx.Items.DecrementStock(ctx, itemID, now)
		if err != nil {
			return err
		}
		if decremented == 0 {
			return abort
		}
		return nil
	})
	assert.ErrorIs(t, err, abort)

	record, err := adapter.Purchases().FindByKey(ctx, itemID, "buyer-1")
	require.NoError(t, err)
	assert.Nil(t, record, "insert must be rolled back with the failed decrement")
}

func TestMySQLAdapter_DecrementRespectsWindow(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db, zerolog.Nop())
	now, start, end := openWindow()
	itemID := seedItem(t, adapter, 5, start, end)

	for _, at := range []time.Time{start.Add(-time.Millisecond), end} {
		n, err := adapter.Items().DecrementStock(ctx, itemID, at)
		require.NoError(t, err)
		assert.Zero(t, n, "decrement at %s", at)
	}

	n, err := adapter.Items().DecrementStock(ctx, itemID, start)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = adapter.Items().DecrementStock(ctx, itemID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMySQLAdapter_FindByID_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db, zerolog.Nop())
	item, err := adapter.Items().FindByID(context.Background(), -1)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestMySQLAdapter_List(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db, zerolog.Nop())
	_, start, end := openWindow()
	seedItem(t, adapter, 1, start, end)
	seedItem(t, adapter, 1, start, end)

	items, err := adapter.Items().List(ctx, 0, 1000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(items), 2)
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].ID, items[i].ID)
	}

	items, err = adapter.Items().List(ctx, 1<<30, 10)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestMySQLAdapter_Procedure(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db, zerolog.Nop())
	now, start, end := openWindow()
	itemID := seedItem(t, adapter, 1, start, end)

	code, err := adapter.ExecutePurchase(ctx, itemID, "buyer-1", now)
	require.NoError(t, err)
	assert.Equal(t, int(domain.StateSuccess), code)

	code, err = adapter.ExecutePurchase(ctx, itemID, "buyer-1", now)
	require.NoError(t, err)
	assert.Equal(t, int(domain.StateAlreadyPurchased), code)

	code, err = adapter.ExecutePurchase(ctx, itemID, "buyer-2", now)
	require.NoError(t, err)
	assert.Equal(t, int(domain.StateSoldOut), code)

	record, err := adapter.Purchases().FindByKey(ctx, itemID, "buyer-2")
	require.NoError(t, err)
	assert.Nil(t, record)

	item, err := adapter.Items().FindByID(ctx, itemID)
	require.NoError(t, err)
	assert.Zero(t, item.Stock)
}
