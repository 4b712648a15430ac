package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents one webhook-delivered financial event and its processing lifecycle
type Transaction struct {
	TransactionID      string          `json:"transaction_id" db:"transaction_id"`
	SourceAccount      string          `json:"source_account" db:"source_account"`
	DestinationAccount string          `json:"destination_account" db:"destination_account"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Currency           string          `json:"currency" db:"currency"`

	// Status
	Status string `json:"status" db:"status"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ClaimedAt   *time.Time `json:"-" db:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	// ClaimToken identifies the current claim holder. It is empty while the
	// record is unclaimed or its claim has been released.
	ClaimToken string `json:"-" db:"claim_token"`
}

// Transaction lifecycle statuses
const (
	StatusReceived   = "RECEIVED"
	StatusProcessing = "PROCESSING"
	StatusProcessed  = "PROCESSED"
)

// Statuses lists the lifecycle in order
var Statuses = []string{StatusReceived, StatusProcessing, StatusProcessed}

// IsValidStatus checks if the transaction status is valid
func IsValidStatus(status string) bool {
	switch status {
	case StatusReceived, StatusProcessing, StatusProcessed:
		return true
	}
	return false
}

// Amounts are stored as NUMERIC(20, 8)
const (
	AmountScale         = 8
	AmountIntegerDigits = 12
)

var maxAmount = decimal.New(1, AmountIntegerDigits)

// TransactionInput is the validated inbound webhook payload
type TransactionInput struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           string
}

// Normalize trims surrounding whitespace from every text field
func (in *TransactionInput) Normalize() {
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	in.SourceAccount = strings.TrimSpace(in.SourceAccount)
	in.DestinationAccount = strings.TrimSpace(in.DestinationAccount)
	in.Currency = strings.TrimSpace(in.Currency)
}

// Validate checks required fields of an inbound payload. Amounts the store
// cannot hold exactly are rejected rather than rounded.
func (in *TransactionInput) Validate() error {
	switch {
	case strings.TrimSpace(in.TransactionID) == "":
		return invalidPayload("transaction_id is required")
	case strings.TrimSpace(in.SourceAccount) == "":
		return invalidPayload("source_account is required")
	case strings.TrimSpace(in.DestinationAccount) == "":
		return invalidPayload("destination_account is required")
	case strings.TrimSpace(in.Currency) == "":
		return invalidPayload("currency is required")
	case !in.Amount.IsPositive():
		return invalidPayload("amount must be greater than zero")
	case !in.Amount.Equal(in.Amount.Truncate(AmountScale)):
		return invalidPayload(fmt.Sprintf("amount supports at most %d decimal places", AmountScale))
	case in.Amount.GreaterThanOrEqual(maxAmount):
		return invalidPayload(fmt.Sprintf("amount supports at most %d integer digits", AmountIntegerDigits))
	}
	return nil
}

// SubmitResult is the acknowledgement returned to the webhook sender
type SubmitResult struct {
	Accepted      bool   `json:"accepted"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Created       bool   `json:"-"`
	Enqueued      bool   `json:"-"`
}

// TransactionRepository defines the Transaction Store contract.
// All methods surface infrastructure failures as errors wrapping ErrStoreUnavailable.
type TransactionRepository interface {
	// InsertOrFetch creates a RECEIVED record or returns the existing one with created=false.
	InsertOrFetch(ctx context.Context, in *TransactionInput, now time.Time) (*Transaction, bool, error)
	// GetByID returns ErrTransactionNotFound for unknown identifiers.
	GetByID(ctx context.Context, transactionID string) (*Transaction, error)
	// TryClaim atomically moves RECEIVED to PROCESSING under a fresh claim
	// token and returns the claimed record. A PROCESSING record is also
	// claimable when its claim was released, or when it was claimed before
	// staleBefore; nil disables takeover. claimed=false leaves the record untouched.
	TryClaim(ctx context.Context, transactionID string, now time.Time, staleBefore *time.Time) (*Transaction, bool, error)
	// ReleaseClaim gives up a claim after a failed confirmation so a retry can
	// claim again. The record stays PROCESSING. It returns ErrNotClaimed when
	// claimToken no longer holds the record.
	ReleaseClaim(ctx context.Context, transactionID, claimToken string) error
	// Finalize moves PROCESSING to PROCESSED and stamps processedAt.
	// It returns ErrNotClaimed unless claimToken holds the record.
	Finalize(ctx context.Context, transactionID, claimToken string, processedAt time.Time) error
	// GetStuck lists PROCESSING records still held by a claim taken before staleBefore.
	GetStuck(ctx context.Context, staleBefore time.Time, limit int) ([]*Transaction, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	Ping(ctx context.Context) error
}

// IngestionUsecase is the gateway surface consumed by the HTTP layer
type IngestionUsecase interface {
	Submit(ctx context.Context, in *TransactionInput) (*SubmitResult, error)
	GetStatus(ctx context.Context, transactionID string) (*Transaction, error)
}

// ProcessingUsecase executes the claim / execute / finalize state machine for one task
type ProcessingUsecase interface {
	ProcessTransaction(ctx context.Context, transactionID string) error
}

// Confirmer performs the externally-facing confirmation step of a claimed
// transaction. Confirm must return once ctx is done: the context deadline is
// what keeps a claim from outliving its lease.
type Confirmer interface {
	Confirm(ctx context.Context, transaction *Transaction) error
}
