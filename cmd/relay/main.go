package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loopmarket/push-relay/internal/cache"
	"github.com/loopmarket/push-relay/internal/config"
	"github.com/loopmarket/push-relay/internal/handler"
	"github.com/loopmarket/push-relay/internal/infra/postgresql"
	"github.com/loopmarket/push-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/loopmarket/push-relay/internal/infra/redis"
	"github.com/loopmarket/push-relay/internal/observability"
	"github.com/loopmarket/push-relay/internal/push"
	"github.com/loopmarket/push-relay/internal/queue"
	"github.com/loopmarket/push-relay/internal/repository"
	"github.com/loopmarket/push-relay/internal/service"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rmq.Close()

	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	devices := repository.NewGormDeviceTokenRepo(db)

	transport, err := buildTransport(ctx, cfg, devices, logger)
	if err != nil {
		logger.Fatal("push transport initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SendRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	attemptLog, err := service.NewAttemptLog(attempts, 0, logger)
	if err != nil {
		logger.Fatal("attempt log initialization failed", zap.Error(err))
	}

	dedupe := cache.NewDedupeCache(time.Duration(cfg.DedupeTTLSeconds) * time.Second)

	orchestrator, err := service.NewOrchestrator(
		notifications,
		attemptLog,
		transport,
		dedupe,
		limiter,
		time.Duration(cfg.DedupeTTLSeconds)*time.Second,
		logger,
	)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orchestrator.SetMetrics(metrics)

	batchableTypes, err := cfg.BatchableTypeSet()
	if err != nil {
		logger.Fatal("invalid batchable types", zap.Error(err))
	}

	batcher, err := service.NewBatcher(
		time.Duration(cfg.BatchWindowSeconds)*time.Second,
		cfg.BatchMaxSize,
		batchableTypes,
		orchestrator.FlushBatch,
		logger,
	)
	if err != nil {
		logger.Fatal("batcher initialization failed", zap.Error(err))
	}
	batcher.SetMetrics(metrics)
	orchestrator.SetBatcher(batcher)

	retries, err := service.NewRetryScheduler(
		time.Duration(cfg.RetryInitialSeconds)*time.Second,
		time.Duration(cfg.RetryMaxSeconds)*time.Second,
		time.Duration(cfg.RetryTickMillis)*time.Millisecond,
		cfg.RetryCeiling,
		orchestrator.RetryAttempt,
		logger,
	)
	if err != nil {
		logger.Fatal("retry scheduler initialization failed", zap.Error(err))
	}
	retries.SetMetrics(metrics)
	orchestrator.SetRetryScheduler(retries)

	consumer := queue.NewRabbitMQConsumer(rmq, cfg.ConsumerConcurrency, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterRoutes(app, sqlDB, rdb, metrics)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return dedupe.Start(groupCtx) })
	g.Go(func() error { return retries.Start(groupCtx) })
	g.Go(func() error { return attemptLog.Start(groupCtx) })

	for i := 0; i < cfg.ConsumerConcurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			logger.Info("request consumer started", zap.Int("workerId", workerID))
			return consumer.Consume(groupCtx, queue.RequestQueueName, func(ctx context.Context, msg queue.RequestMessage) error {
				if msg.CorrelationID != "" {
					ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
				}
				_, err := orchestrator.Submit(ctx, msg.RecipientID, msg.ToRequest())
				return err
			})
		})
	}

	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownGrace)
	})

	logger.Info("push-relay started",
		zap.Int("port", cfg.APIPort),
		zap.Int("consumers", cfg.ConsumerConcurrency),
	)

	err = g.Wait()

	// Flush open batches before exiting; best-effort by design.
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	batcher.FlushAll(flushCtx)
	cancel()

	if err != nil {
		logger.Error("push-relay stopped with error", zap.Error(err))
		return
	}
	logger.Info("push-relay stopped")
}

func buildTransport(ctx context.Context, cfg *config.Config, devices repository.DeviceTokenRepository, logger *zap.Logger) (push.Transport, error) {
	if cfg.FirebaseCredentialsFile != "" {
		client, err := push.NewFCMClient(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		return push.NewFCMTransport(client, devices, logger)
	}
	if cfg.PushWebhookURL != "" {
		return push.NewWebhookTransport(cfg.PushWebhookURL)
	}
	return nil, fmt.Errorf("no push transport configured: set FIREBASE_CREDENTIALS_FILE or PUSH_WEBHOOK_URL")
}
