package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
)

// releaseTimeout bounds the claim release after a failed confirmation
const releaseTimeout = 5 * time.Second

// ProcessingConfig tunes the claim step
type ProcessingConfig struct {
	// ClaimLease lets a PROCESSING record claimed longer ago than this be
	// taken over by another worker. Zero disables takeover. When set, each
	// confirmation is cut off at half the lease so a live claim is never
	// taken over; the Confirmer must return once its context is done.
	ClaimLease time.Duration
}

type processingUsecase struct {
	transactionRepo domain.TransactionRepository
	confirmer       domain.Confirmer
	publisher       domain.EventPublisher
	cfg             ProcessingConfig
	now             func() time.Time
}

// NewProcessingUsecase creates the claim / confirm / finalize state machine
func NewProcessingUsecase(
	transactionRepo domain.TransactionRepository,
	confirmer domain.Confirmer,
	publisher domain.EventPublisher,
	cfg ProcessingConfig,
) domain.ProcessingUsecase {
	return &processingUsecase{
		transactionRepo: transactionRepo,
		confirmer:       confirmer,
		publisher:       publisher,
		cfg:             cfg,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTransaction runs one delivered task. Losing the claim is a normal
// outcome and returns nil; any returned error makes the queue retry the task.
func (uc *processingUsecase) ProcessTransaction(ctx context.Context, transactionID string) error {
	start := time.Now()
	claimedAt := uc.now()

	var staleBefore *time.Time
	if uc.cfg.ClaimLease > 0 {
		cutoff := claimedAt.Add(-uc.cfg.ClaimLease)
		staleBefore = &cutoff
	}

	transaction, claimed, err := uc.transactionRepo.TryClaim(ctx, transactionID, claimedAt, staleBefore)
	if err != nil {
		return fmt.Errorf("failed to claim transaction: %w", err)
	}
	metrics.RecordClaim(claimed)
	if !claimed {
		logger.Debug("Transaction already claimed, skipping",
			logger.TransactionID(transactionID),
		)
		return nil
	}

	logger.Info("Transaction claimed", logger.TransactionID(transactionID))

	if err := uc.confirm(ctx, transaction); err != nil {
		logger.Error("Transaction confirmation failed",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		uc.release(ctx, transaction)
		return fmt.Errorf("failed to confirm transaction: %w", err)
	}

	processedAt := uc.now()
	if err := uc.transactionRepo.Finalize(ctx, transactionID, transaction.ClaimToken, processedAt); err != nil {
		if errors.Is(err, domain.ErrNotClaimed) {
			// Another worker took the lease over and finished first.
			logger.Warn("Transaction finalized elsewhere",
				logger.TransactionID(transactionID),
			)
			return nil
		}
		return fmt.Errorf("failed to finalize transaction: %w", err)
	}

	metrics.RecordProcessed(time.Since(start).Seconds())
	uc.publishProcessed(ctx, transaction, processedAt)

	return nil
}

func (uc *processingUsecase) confirm(ctx context.Context, transaction *domain.Transaction) error {
	if uc.cfg.ClaimLease > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.ClaimLease/2)
		defer cancel()
	}
	return uc.confirmer.Confirm(ctx, transaction)
}

// release drops the claim so the queue's next delivery confirms again. The
// record stays PROCESSING; once retries run out the task sits in the failed
// registry until an operator requeues it.
func (uc *processingUsecase) release(ctx context.Context, transaction *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	err := uc.transactionRepo.ReleaseClaim(ctx, transaction.TransactionID, transaction.ClaimToken)
	switch {
	case err == nil:
		logger.Info("Transaction claim released", logger.TransactionID(transaction.TransactionID))
	case errors.Is(err, domain.ErrNotClaimed):
		logger.Warn("Transaction claim lost before release",
			logger.TransactionID(transaction.TransactionID),
		)
	default:
		// The claim stays until the lease expires or the sweeper finds it.
		logger.Error("Failed to release transaction claim",
			logger.TransactionID(transaction.TransactionID),
			logger.ErrorField(err),
		)
	}
}

func (uc *processingUsecase) publishProcessed(ctx context.Context, transaction *domain.Transaction, processedAt time.Time) {
	if uc.publisher == nil {
		return
	}

	event := &domain.TransactionProcessedEvent{
		Type:          domain.EventTransactionProcessed,
		TransactionID: transaction.TransactionID,
		Amount:        transaction.Amount,
		Currency:      transaction.Currency,
		ProcessedAt:   processedAt,
	}
	if err := uc.publisher.PublishProcessed(ctx, event); err != nil {
		metrics.RecordEventPublished(event.Type, "failed")
		logger.Error("Failed to publish processed event",
			logger.TransactionID(transaction.TransactionID),
			logger.ErrorField(err),
		)
		return
	}
	metrics.RecordEventPublished(event.Type, "published")
}
