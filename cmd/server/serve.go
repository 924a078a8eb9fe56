package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	"github.com/rl1809/seckill/internal/adapter/handler"
	"github.com/rl1809/seckill/internal/adapter/messaging"
	"github.com/rl1809/seckill/internal/adapter/storage"
	"github.com/rl1809/seckill/internal/config"
	"github.com/rl1809/seckill/internal/core/service"
	"github.com/rl1809/seckill/internal/core/token"
	"github.com/rl1809/seckill/internal/metrics"
	"github.com/rl1809/seckill/internal/port"
	"github.com/rl1809/seckill/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

type eventPublisher interface {
	port.PurchasePublisher
	Close() error
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	tp, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	dsn, err := storage.NormalizeDSN(cfg.MySQL.DSN)
	if err != nil {
		return err
	}
	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return errors.Wrap(err, "connect mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	logger.Info().Msg("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// reads fall through to mysql until redis comes back
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	} else {
		logger.Info().Msg("connected to redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	codec, err := token.NewCodec(cfg.TokenSecret)
	if err != nil {
		return err
	}

	mysqlAdapter := storage.NewMySQLAdapter(db, logger)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TTL)

	seckill := service.NewSeckillService(mysqlAdapter, mysqlAdapter, redisAdapter, codec, m, logger, service.Options{
		MaxPageSize:  cfg.MaxPageSize,
		CacheTimeout: cfg.CacheTimeout,
		QueueSize:    cfg.Events.QueueSize,
	})

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("close publisher")
		}
	}()

	dispatcher := service.NewEventDispatcher(publisher, m, logger, cfg.Events.PublishTimeout)
	waitWorkers := dispatcher.Run(seckill.Events(), cfg.Events.Workers)

	grpcServer := grpc.NewServer()
	handler.RegisterSeckillServiceServer(grpcServer, handler.NewGRPCHandler(seckill, cfg.UseProcedure, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		seckill.Close()
		waitWorkers()
		return errors.Wrapf(err, "listen %s", cfg.GRPCAddr)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- errors.Wrap(err, "grpc server")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(seckill, cfg.UseProcedure, logger).Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("use_procedure", cfg.UseProcedure).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http server")
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info().Msg("gRPC server stopped")

	// handlers still running after a shutdown timeout drop their events
	seckill.Close()
	waitWorkers()
	logger.Info().Msg("event workers stopped")

	return runErr
}

func newPublisher(cfg config.Config, logger zerolog.Logger) eventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info().Msg("no kafka brokers configured, logging purchase events")
		return messaging.NewLogPublisher(logger)
	}
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing purchase events to kafka")
	return messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
}
