package confirmation

import (
	"context"
	"fmt"
	"time"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
)

// SimulatedConfirmer implements domain.Confirmer by waiting a fixed delay in
// place of a call to an external payment network. It has no side effects.
type SimulatedConfirmer struct {
	delay time.Duration
}

var _ domain.Confirmer = (*SimulatedConfirmer)(nil)

// NewSimulatedConfirmer creates a confirmer that takes delay per transaction
func NewSimulatedConfirmer(delay time.Duration) *SimulatedConfirmer {
	if delay < 0 {
		delay = 0
	}
	return &SimulatedConfirmer{delay: delay}
}

// Confirm blocks for the configured delay or until ctx is done
func (c *SimulatedConfirmer) Confirm(ctx context.Context, transaction *domain.Transaction) error {
	if transaction == nil {
		return fmt.Errorf("transaction is required")
	}

	logger.Debug("Confirming transaction",
		logger.TransactionID(transaction.TransactionID),
		logger.Duration("delay", c.delay),
	)

	if c.delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("confirmation interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
