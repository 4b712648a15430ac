package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
)

// TransactionWorker runs a pool of goroutines that consume transaction IDs
// from QueueRepository and delegate them to ProcessingUsecase. Callers manage
// lifecycle through the context passed to Start (cancel on shutdown).
type TransactionWorker struct {
	queueRepo    domain.QueueRepository
	processingUC domain.ProcessingUsecase
	interval     time.Duration
	concurrency  int
}

// TransactionWorkerConfig defines runtime options for the worker pool.
type TransactionWorkerConfig struct {
	PollingInterval time.Duration
	Concurrency     int
}

// NewTransactionWorker builds a new transaction worker pool.
func NewTransactionWorker(queueRepo domain.QueueRepository, processingUC domain.ProcessingUsecase, cfg TransactionWorkerConfig) *TransactionWorker {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &TransactionWorker{
		queueRepo:    queueRepo,
		processingUC: processingUC,
		interval:     interval,
		concurrency:  concurrency,
	}
}

// Start launches the pool and blocks until ctx is cancelled and every
// in-flight task has been acked or failed.
func (w *TransactionWorker) Start(ctx context.Context) {
	logger.Info("Transaction worker pool started",
		logger.Int("concurrency", w.concurrency),
		logger.Duration("poll_interval", w.interval),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			w.run(ctx, workerID)
		}(uuid.NewString())
	}

	wg.Wait()
	logger.Info("Transaction worker pool stopped")
}

func (w *TransactionWorker) run(ctx context.Context, workerID string) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	workerLog := logger.WithFields(logger.String("worker_id", workerID))
	workerLog.Debug("Transaction worker started")

	for {
		select {
		case <-ctx.Done():
			workerLog.Debug("Transaction worker stopping", logger.ErrorField(ctx.Err()))
			return
		case <-ticker.C:
			for ctx.Err() == nil && w.processNext(ctx, workerID) {
			}
		}
	}
}

// promoteLoop moves due retries and expired deliveries back to pending
func (w *TransactionWorker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queueRepo.Promote(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Failed to promote queued tasks", logger.ErrorField(err))
			}
			if pending, err := w.queueRepo.GetQueueLength(ctx); err == nil && pending > 0 {
				logger.Debug("Pending tasks", logger.Int64("pending", pending))
			}
		}
	}
}

// processNext handles one task and reports whether one was available
func (w *TransactionWorker) processNext(ctx context.Context, workerID string) bool {
	if w.queueRepo == nil || w.processingUC == nil {
		logger.Warn("Transaction worker missing dependencies")
		return false
	}

	task, err := w.queueRepo.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Failed to dequeue transaction", logger.ErrorField(err))
		}
		return false
	}

	if task == nil {
		// No items available
		return false
	}

	// A dequeued task runs to completion even during shutdown.
	taskCtx := context.WithoutCancel(ctx)

	start := time.Now()
	err = w.processingUC.ProcessTransaction(taskCtx, task.Payload)
	duration := time.Since(start)

	if err != nil {
		logger.Error("Failed to process queued transaction",
			logger.String("worker_id", workerID),
			logger.TransactionID(task.Payload),
			logger.Int("attempt", task.Attempt),
			logger.Duration("duration", duration),
			logger.ErrorField(err),
		)
		if _, failErr := w.queueRepo.Fail(taskCtx, task, err); failErr != nil {
			if errors.Is(failErr, domain.ErrStaleDelivery) {
				staleDelivery(task)
				return true
			}
			logger.Error("Failed to record task failure",
				logger.TransactionID(task.Payload),
				logger.ErrorField(failErr),
			)
		}
		return true
	}

	if err := w.queueRepo.Ack(taskCtx, task); err != nil {
		if errors.Is(err, domain.ErrStaleDelivery) {
			staleDelivery(task)
			return true
		}
		logger.Error("Failed to ack task",
			logger.TransactionID(task.Payload),
			logger.ErrorField(err),
		)
		return true
	}

	logger.Debug("Queued transaction processed",
		logger.String("worker_id", workerID),
		logger.TransactionID(task.Payload),
		logger.Duration("duration", duration),
	)
	return true
}

// staleDelivery logs a delivery that outlived its visibility timeout. The
// redelivered attempt owns the task now, so the result is dropped.
func staleDelivery(task *domain.Task) {
	logger.Warn("Task was redelivered while processing, result dropped",
		logger.TransactionID(task.Payload),
		logger.Int("attempt", task.Attempt),
	)
}
