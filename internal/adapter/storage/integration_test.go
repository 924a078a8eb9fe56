package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/core/service"
	"github.com/rl1809/seckill/internal/core/token"
	"github.com/rl1809/seckill/internal/metrics"
)

type testEnv struct {
	db      *MySQLAdapter
	cache   *RedisAdapter
	svc     *service.SeckillService
	tokens  *token.Codec
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	client := getRedisClient(t)
	sqlDB := getMySQLDB(t)
	flushPrefix(t, client)

	codec, err := token.NewCodec("integration-secret")
	require.NoError(t, err)

	db := NewMySQLAdapter(sqlDB, zerolog.Nop())
	cache := NewRedisAdapter(client, testPrefix, time.Minute)
	svc := service.NewSeckillService(db, db, cache, codec,
		metrics.New(prometheus.NewRegistry()), zerolog.Nop(), service.Options{QueueSize: 100})

	return &testEnv{
		db:     db,
		cache:  cache,
		svc:    svc,
		tokens: codec,
		cleanup: func() {
			client.Close()
			sqlDB.Close()
		},
	}
}

func runBuyers(t *testing.T, env *testEnv, itemID int64, buyers int, procedure bool) (success, soldOut int32) {
	t.Helper()

	exposure, err := env.svc.Expose(context.Background(), itemID)
	require.NoError(t, err)
	require.True(t, exposure.Exposed())

	var ok, out atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := fmt.Sprintf("buyer-%d", i)

			var result domain.PurchaseResult
			if procedure {
				result = env.svc.ExecutePurchaseProcedure(context.Background(), itemID, buyer, exposure.Token)
			} else {
				result = env.svc.ExecutePurchase(context.Background(), itemID, buyer, exposure.Token)
			}

			switch result.State {
			case domain.StateSuccess:
				ok.Add(1)
			case domain.StateSoldOut:
				out.Add(1)
			default:
				t.Errorf("buyer %s: unexpected state %s", buyer, result.State)
			}
		}(i)
	}
	wg.Wait()
	return ok.Load(), out.Load()
}

func TestIntegration_FullFlashSaleFlow(t *testing.T) {
	for _, procedure := range []bool{false, true} {
		t.Run(fmt.Sprintf("procedure=%v", procedure), func(t *testing.T) {
			env := setupTestEnv(t)
			defer env.cleanup()
			defer env.svc.Close()

			const stock, buyers = 10, 30
			_, start, end := openWindow()
			itemID := seedItem(t, env.db, stock, start, end)

			success, soldOut := runBuyers(t, env, itemID, buyers, procedure)

			assert.Equal(t, int32(stock), success)
			assert.Equal(t, int32(buyers-stock), soldOut)

			item, err := env.db.Items().FindByID(context.Background(), itemID)
			require.NoError(t, err)
			assert.Zero(t, item.Stock)

			var purchases int
			require.NoError(t, env.db.db.Get(&purchases,
				`SELECT COUNT(*) FROM seckill_purchase WHERE item_id = ?`, itemID))
			assert.Equal(t, stock, purchases)
			assert.Len(t, env.svc.Events(), stock)
		})
	}
}

func TestIntegration_RepeatBuyerKeepsStock(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	defer env.svc.Close()

	ctx := context.Background()
	_, start, end := openWindow()
	itemID := seedItem(t, env.db, 5, start, end)
	tok := env.tokens.Derive(itemID)

	first := env.svc.ExecutePurchase(ctx, itemID, "13800000000", tok)
	require.Equal(t, domain.StateSuccess, first.State)
	assert.Equal(t, itemID, first.Record.Item.ID)

	second := env.svc.ExecutePurchase(ctx, itemID, "13800000000", tok)
	assert.Equal(t, domain.StateAlreadyPurchased, second.State)

	third := env.svc.ExecutePurchaseProcedure(ctx, itemID, "13800000000", tok)
	assert.Equal(t, domain.StateAlreadyPurchased, third.State)

	item, err := env.db.Items().FindByID(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Stock)
}

func TestIntegration_SameBuyerConcurrent(t *testing.T) {
	for _, procedure := range []bool{false, true} {
		t.Run(fmt.Sprintf("procedure=%v", procedure), func(t *testing.T) {
			env := setupTestEnv(t)
			defer env.cleanup()
			defer env.svc.Close()

			const stock, attempts = 5, 20
			_, start, end := openWindow()
			itemID := seedItem(t, env.db, stock, start, end)
			tok := env.tokens.Derive(itemID)

			var success, repeated atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					var result domain.PurchaseResult
					if procedure {
						result = env.svc.ExecutePurchaseProcedure(context.Background(), itemID, "13800000000", tok)
					} else {
						result = env.svc.ExecutePurchase(context.Background(), itemID, "13800000000", tok)
					}
					switch result.State {
					case domain.StateSuccess:
						success.Add(1)
					case domain.StateAlreadyPurchased:
						repeated.Add(1)
					default:
						t.Errorf("unexpected state %s", result.State)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), success.Load())
			assert.Equal(t, int32(attempts-1), repeated.Load())

			item, err := env.db.Items().FindByID(context.Background(), itemID)
			require.NoError(t, err)
			assert.Equal(t, stock-1, item.Stock)

			var purchases int
			require.NoError(t, env.db.db.Get(&purchases,
				`SELECT COUNT(*) FROM seckill_purchase WHERE item_id = ?`, itemID))
			assert.Equal(t, 1, purchases)
		})
	}
}

func TestIntegration_ClosedSale(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	defer env.svc.Close()

	ctx := context.Background()
	now, _, _ := openWindow()
	itemID := seedItem(t, env.db, 5, now.Add(-2*time.Hour), now.Add(-time.Hour))

	exposure, err := env.svc.Expose(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExposureClosed, exposure.State)
	assert.Empty(t, exposure.Token)

	result := env.svc.ExecutePurchase(ctx, itemID, "late", env.tokens.Derive(itemID))
	assert.Equal(t, domain.StateSoldOut, result.State)

	cached, err := env.cache.GetItem(ctx, itemID)
	require.NoError(t, err)
	require.NotNil(t, cached, "exposure should fill the item cache")
	assert.Equal(t, 5, cached.Stock)
}
