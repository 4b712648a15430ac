package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
)

const transactionColumns = `transaction_id, source_account, destination_account,
		amount, currency, status, created_at, claimed_at, processed_at,
		COALESCE(claim_token, '') AS claim_token`

type transactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// InsertOrFetch relies on the primary key on transaction_id: the insert is a
// no-op on conflict and the existing row is read back instead.
func (r *transactionRepository) InsertOrFetch(ctx context.Context, in *domain.TransactionInput, now time.Time) (*domain.Transaction, bool, error) {
	query := `
		INSERT INTO transactions (transaction_id, source_account, destination_account,
			amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + transactionColumns

	defer observe("insert", time.Now())

	var transaction domain.Transaction
	err := r.db.GetContext(ctx, &transaction, query,
		in.TransactionID, in.SourceAccount, in.DestinationAccount,
		in.Amount, in.Currency, domain.StatusReceived, now,
	)
	if err == nil {
		logger.Info("Transaction created",
			logger.TransactionID(transaction.TransactionID),
		)
		return &transaction, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.Error("Failed to insert transaction",
			logger.TransactionID(in.TransactionID),
			logger.ErrorField(err),
		)
		return nil, false, domain.StoreError("insert transaction", err)
	}

	existing, err := r.GetByID(ctx, in.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, false, domain.StoreError("fetch conflicting transaction", err)
		}
		return nil, false, err
	}

	logger.Debug("Transaction already exists",
		logger.TransactionID(existing.TransactionID),
		logger.String("status", existing.Status),
	)
	return existing, false, nil
}

// GetByID retrieves a transaction by its identifier
func (r *transactionRepository) GetByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	defer observe("get", time.Now())

	var transaction domain.Transaction
	err := r.db.GetContext(ctx, &transaction, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		logger.Error("Failed to get transaction",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		return nil, domain.StoreError("get transaction", err)
	}

	return &transaction, nil
}

// TryClaim is a single conditional UPDATE. Postgres re-checks the WHERE clause
// against the committed row when two claimants race, so only one gets a row back.
func (r *transactionRepository) TryClaim(ctx context.Context, transactionID string, now time.Time, staleBefore *time.Time) (*domain.Transaction, bool, error) {
	query := `
		UPDATE transactions SET status = $2, claimed_at = $3, claim_token = $6
		WHERE transaction_id = $1
			AND (status = $4 OR (status = $2 AND (claim_token IS NULL OR claimed_at < $5)))
		RETURNING ` + transactionColumns

	defer observe("claim", time.Now())

	var transaction domain.Transaction
	err := r.db.GetContext(ctx, &transaction, query,
		transactionID, domain.StatusProcessing, now, domain.StatusReceived, staleBefore, uuid.NewString(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		logger.Error("Failed to claim transaction",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		return nil, false, domain.StoreError("claim transaction", err)
	}

	return &transaction, true, nil
}

// ReleaseClaim clears the claim of a PROCESSING transaction held by claimToken
func (r *transactionRepository) ReleaseClaim(ctx context.Context, transactionID, claimToken string) error {
	query := `
		UPDATE transactions SET claimed_at = NULL, claim_token = NULL
		WHERE transaction_id = $1 AND status = $2 AND claim_token = $3
	`

	defer observe("release", time.Now())

	result, err := r.db.ExecContext(ctx, query, transactionID, domain.StatusProcessing, claimToken)
	if err != nil {
		logger.Error("Failed to release claim",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		return domain.StoreError("release claim", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.StoreError("release rows affected", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotClaimed
	}

	return nil
}

// Finalize moves a claimed transaction to PROCESSED
func (r *transactionRepository) Finalize(ctx context.Context, transactionID, claimToken string, processedAt time.Time) error {
	query := `
		UPDATE transactions SET status = $2, processed_at = $3
		WHERE transaction_id = $1 AND status = $4 AND claim_token = $5
	`

	defer observe("finalize", time.Now())

	result, err := r.db.ExecContext(ctx, query,
		transactionID, domain.StatusProcessed, processedAt, domain.StatusProcessing, claimToken,
	)
	if err != nil {
		logger.Error("Failed to finalize transaction",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		return domain.StoreError("finalize transaction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.StoreError("finalize rows affected", err)
	}

	if rowsAffected == 0 {
		return domain.ErrNotClaimed
	}

	logger.Info("Transaction processed",
		logger.TransactionID(transactionID),
		logger.Time("processed_at", processedAt),
	)

	return nil
}

// GetStuck retrieves PROCESSING transactions claimed before staleBefore, oldest first.
// Released claims have no claimed_at and are left to the queue's failed registry.
func (r *transactionRepository) GetStuck(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND claimed_at < $2
		ORDER BY claimed_at ASC
		LIMIT $3
	`

	defer observe("get_stuck", time.Now())

	var transactions []*domain.Transaction
	err := r.db.SelectContext(ctx, &transactions, query, domain.StatusProcessing, staleBefore, limit)
	if err != nil {
		logger.Error("Failed to get stuck transactions", logger.ErrorField(err))
		return nil, domain.StoreError("get stuck transactions", err)
	}

	return transactions, nil
}

// CountByStatus gets count of transactions per status
func (r *transactionRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM transactions GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, domain.StoreError("count transactions", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *transactionRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.StoreError("ping", err)
	}
	return nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, "transactions", time.Since(start).Seconds())
}
