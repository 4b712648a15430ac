package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/txhook/pkg/logger"
)

// The primary key on transaction_id is the store-level idempotency guarantee.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id      TEXT PRIMARY KEY,
		source_account      TEXT NOT NULL,
		destination_account TEXT NOT NULL,
		amount              NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		currency            TEXT NOT NULL,
		status              TEXT NOT NULL CHECK (status IN ('RECEIVED', 'PROCESSING', 'PROCESSED')),
		created_at          TIMESTAMPTZ NOT NULL,
		claimed_at          TIMESTAMPTZ,
		processed_at        TIMESTAMPTZ,
		claim_token         TEXT,
		CONSTRAINT transactions_processed_at_check CHECK ((status = 'PROCESSED') = (processed_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_processing_claimed_at
		ON transactions (claimed_at) WHERE status = 'PROCESSING'`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS claim_token TEXT`,
}

// EnsureSchema creates the transactions table and its indexes when missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Info("Database schema ensured")
	return nil
}
