// Package bootstrap builds the explicitly owned infrastructure handles shared
// by the api and worker processes.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alfanzaky/txhook/config"
	"github.com/alfanzaky/txhook/internal/adapter/confirmation"
	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/internal/events/kafka"
	"github.com/alfanzaky/txhook/internal/repository/memory"
	"github.com/alfanzaky/txhook/internal/repository/postgres"
	redisrepo "github.com/alfanzaky/txhook/internal/repository/redis"
	"github.com/alfanzaky/txhook/internal/usecase"
	"github.com/alfanzaky/txhook/internal/worker"
	"github.com/alfanzaky/txhook/pkg/logger"
)

// Dependencies holds every connection a process owns. Close releases them.
type Dependencies struct {
	DB              *sqlx.DB
	Redis           *redis.Client
	TransactionRepo domain.TransactionRepository
	QueueRepo       domain.QueueRepository
	Publisher       domain.EventPublisher
}

// Open connects the store, queue and event publisher selected by cfg
func Open(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	switch cfg.App.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory transaction store, records are lost on restart")
		deps.TransactionRepo = memory.NewTransactionRepository()
	default:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
		db.SetMaxOpenConns(cfg.Database.MaxOpen)
		db.SetConnMaxLifetime(cfg.Database.MaxLife)

		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		deps.DB = db
		deps.TransactionRepo = postgres.NewTransactionRepository(db)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		deps.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	deps.Redis = rdb
	deps.QueueRepo = redisrepo.NewQueueRepository(rdb, redisrepo.QueueOptions{
		Name:              cfg.Queue.Name,
		MaxRetries:        cfg.Queue.MaxRetries,
		RetryBackoff:      cfg.Queue.RetryBackoff,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		ResultTTL:         cfg.Queue.ResultTTL,
	})

	if len(cfg.Kafka.Brokers) > 0 {
		deps.Publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("Publishing processed events",
			logger.Any("brokers", cfg.Kafka.Brokers),
			logger.String("topic", cfg.Kafka.Topic),
		)
	} else {
		deps.Publisher = kafka.NoopPublisher{}
	}

	logger.Info("Store and queue connections established",
		logger.String("store_driver", cfg.App.StoreDriver),
		logger.String("queue", cfg.Queue.Name),
	)
	return deps, nil
}

// NewTransactionWorker wires the processing state machine into a worker pool
func (d *Dependencies) NewTransactionWorker(cfg *config.Config) *worker.TransactionWorker {
	processingUC := usecase.NewProcessingUsecase(
		d.TransactionRepo,
		confirmation.NewSimulatedConfirmer(cfg.Processor.Delay),
		d.Publisher,
		usecase.ProcessingConfig{ClaimLease: cfg.Recovery.ClaimLease},
	)
	return worker.NewTransactionWorker(d.QueueRepo, processingUC, worker.TransactionWorkerConfig{
		PollingInterval: cfg.Worker.PollInterval,
		Concurrency:     cfg.Worker.Concurrency,
	})
}

// NewSweeper wires stuck transaction recovery onto its cron schedule
func (d *Dependencies) NewSweeper(cfg *config.Config) (*worker.Sweeper, error) {
	recoveryUC := usecase.NewRecoveryUsecase(d.TransactionRepo, d.QueueRepo, cfg.Recovery.ClaimLease, cfg.Recovery.BatchSize)
	return worker.NewSweeper(recoveryUC, cfg.Recovery.Schedule)
}

// Close releases the publisher, Redis and database in that order
func (d *Dependencies) Close() {
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", logger.ErrorField(err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error("Failed to close redis client", logger.ErrorField(err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			logger.Error("Failed to close database", logger.ErrorField(err))
		}
	}
}
