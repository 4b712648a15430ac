package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidPayload      = errors.New("invalid transaction payload")
	ErrStoreUnavailable    = errors.New("transaction store unavailable")
	ErrQueueUnavailable    = errors.New("work queue unavailable")
	ErrNotClaimed          = errors.New("transaction not claimed")
	ErrTaskNotFound        = errors.New("task not found")
	ErrStaleDelivery       = errors.New("task delivery superseded")
)

// ValidationError carries the reason an inbound payload was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

func invalidPayload(reason string) error {
	return &ValidationError{Reason: reason}
}

// StoreError marks err as a transient store failure
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// QueueError marks err as a transient queue failure
func QueueError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrQueueUnavailable, err)
}
