package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
)

// RecoveryUsecase puts transactions whose claim lease ran out back on the queue
type RecoveryUsecase struct {
	transactionRepo domain.TransactionRepository
	queueRepo       domain.QueueRepository
	lease           time.Duration
	batchSize       int
	now             func() time.Time
}

// NewRecoveryUsecase creates the stuck transaction sweeper logic.
// A non-positive lease disables recovery.
func NewRecoveryUsecase(
	transactionRepo domain.TransactionRepository,
	queueRepo domain.QueueRepository,
	lease time.Duration,
	batchSize int,
) *RecoveryUsecase {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RecoveryUsecase{
		transactionRepo: transactionRepo,
		queueRepo:       queueRepo,
		lease:           lease,
		batchSize:       batchSize,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a claim lease is configured
func (uc *RecoveryUsecase) Enabled() bool {
	return uc.lease > 0
}

// ReportStatusCounts refreshes the per-status gauge from the store
func (uc *RecoveryUsecase) ReportStatusCounts(ctx context.Context) error {
	counts, err := uc.transactionRepo.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count transactions: %w", err)
	}

	for _, status := range domain.Statuses {
		metrics.SetTransactionsByStatus(status, float64(counts[status]))
	}
	for status := range counts {
		if !domain.IsValidStatus(status) {
			logger.Warn("Store holds transactions with an unknown status",
				logger.String("status", status),
				logger.Int("count", counts[status]),
			)
		}
	}
	return nil
}

// RecoverStuck requeues up to one batch of PROCESSING transactions with an
// expired claim. The worker that picks one up takes the lease over in TryClaim.
func (uc *RecoveryUsecase) RecoverStuck(ctx context.Context) (int, error) {
	if !uc.Enabled() {
		return 0, nil
	}

	staleBefore := uc.now().Add(-uc.lease)
	stuck, err := uc.transactionRepo.GetStuck(ctx, staleBefore, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck transactions: %w", err)
	}

	requeued := 0
	for _, transaction := range stuck {
		if err := uc.queueRepo.Requeue(ctx, transaction.TransactionID, transaction.TransactionID); err != nil {
			logger.Error("Failed to requeue stuck transaction",
				logger.TransactionID(transaction.TransactionID),
				logger.ErrorField(err),
			)
			metrics.RecordStuckRequeued(requeued)
			return requeued, fmt.Errorf("failed to requeue stuck transaction: %w", err)
		}
		requeued++
	}

	if requeued > 0 {
		logger.Warn("Requeued stuck transactions",
			logger.Int("count", requeued),
			logger.Duration("lease", uc.lease),
		)
	}
	metrics.RecordStuckRequeued(requeued)
	return requeued, nil
}
