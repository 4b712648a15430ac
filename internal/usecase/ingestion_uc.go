package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
	"github.com/alfanzaky/txhook/pkg/observability"
)

type ingestionUsecase struct {
	transactionRepo domain.TransactionRepository
	queueRepo       domain.QueueRepository
	now             func() time.Time
}

// NewIngestionUsecase creates the webhook ingestion gateway
func NewIngestionUsecase(
	transactionRepo domain.TransactionRepository,
	queueRepo domain.QueueRepository,
) domain.IngestionUsecase {
	return &ingestionUsecase{
		transactionRepo: transactionRepo,
		queueRepo:       queueRepo,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Submit records the transaction and schedules its processing.
// The task is enqueued even when the record already existed, so a sender
// retrying after a failed enqueue still gets the work scheduled; the queue
// drops the duplicate otherwise.
func (uc *ingestionUsecase) Submit(ctx context.Context, in *domain.TransactionInput) (*domain.SubmitResult, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrInvalidPayload)
	}
	normalized := *in
	normalized.Normalize()
	in = &normalized

	if err := in.Validate(); err != nil {
		return nil, err
	}

	transaction, created, err := uc.transactionRepo.InsertOrFetch(ctx, in, uc.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	metrics.RecordWebhook(created)

	enqueued, err := uc.queueRepo.Enqueue(ctx, transaction.TransactionID, transaction.TransactionID)
	if err != nil {
		logger.Error("Failed to schedule transaction",
			logger.String("trace_id", observability.GetTraceIDFromContext(ctx)),
			logger.TransactionID(transaction.TransactionID),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to schedule transaction: %w", err)
	}

	logger.Info("Webhook accepted",
		logger.String("trace_id", observability.GetTraceIDFromContext(ctx)),
		logger.TransactionID(transaction.TransactionID),
		logger.String("status", transaction.Status),
		logger.Bool("created", created),
		logger.Bool("enqueued", enqueued),
	)

	return &domain.SubmitResult{
		Accepted:      true,
		TransactionID: transaction.TransactionID,
		Status:        transaction.Status,
		Created:       created,
		Enqueued:      enqueued,
	}, nil
}

// GetStatus reads the record straight from the store
func (uc *ingestionUsecase) GetStatus(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrTransactionNotFound
	}
	return uc.transactionRepo.GetByID(ctx, transactionID)
}
