package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/seckill/internal/adapter/storage"
	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/core/service"
	"github.com/rl1809/seckill/internal/core/token"
	"github.com/rl1809/seckill/internal/metrics"
)

const (
	defaultDSN    = "root:root@tcp(localhost:3306)/seckill?parseTime=true"
	tokenSecret   = "stress-test-secret"
	initialStock  = 20
	totalRequests = 50
	concurrency   = 50
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("stress test aborted")
	}
}

func run(logger zerolog.Logger) error {
	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = defaultDSN
	}
	if err := storage.Migrate(dsn, storage.MigrateUp, logger); err != nil {
		return err
	}

	dsn, err := storage.NormalizeDSN(dsn)
	if err != nil {
		return err
	}
	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(concurrency)

	adapter := storage.NewMySQLAdapter(db, logger)
	now := time.Now().UTC()
	itemID, err := adapter.CreateItem(ctx, domain.Item{
		Name:      fmt.Sprintf("stress-%d", now.Unix()),
		Stock:     initialStock,
		StartTime: now.Add(-time.Minute),
		EndTime:   now.Add(time.Hour),
	})
	if err != nil {
		return err
	}

	codec, err := token.NewCodec(tokenSecret)
	if err != nil {
		return err
	}
	svc := service.NewSeckillService(adapter, adapter, nil, codec,
		metrics.New(prometheus.NewRegistry()), zerolog.Nop(), service.Options{QueueSize: totalRequests})
	defer svc.Close()

	var success, soldOut, other atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		g.Go(func() error {
			exposure, err := svc.Expose(gctx, itemID)
			if err != nil {
				return err
			}
			switch svc.ExecutePurchase(gctx, itemID, buyer, exposure.Token).State {
			case domain.StateSuccess:
				success.Add(1)
			case domain.StateSoldOut:
				soldOut.Add(1)
			default:
				other.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	item, err := adapter.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	var purchases int
	if err := db.GetContext(ctx, &purchases, `SELECT COUNT(*) FROM seckill_purchase WHERE item_id = ?`, itemID); err != nil {
		return err
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Item:             %d\n", itemID)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Other:            %d\n", other.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Stock:      %d\n", item.Stock)
	fmt.Printf("Purchase Records: %d\n", purchases)
	fmt.Println("==========================================")

	if success.Load() != initialStock || item.Stock != 0 || purchases != initialStock {
		return fmt.Errorf("FAIL: expected %d purchases and stock 0", initialStock)
	}
	fmt.Printf("PASS: exactly %d purchases, stock depleted\n", initialStock)
	return nil
}
