package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventTransactionProcessed is emitted once a transaction reaches PROCESSED
const EventTransactionProcessed = "transaction.processed"

// TransactionProcessedEvent is the payload published after finalize
type TransactionProcessedEvent struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// EventPublisher delivers domain events to downstream consumers
type EventPublisher interface {
	PublishProcessed(ctx context.Context, event *TransactionProcessedEvent) error
	Close() error
}
