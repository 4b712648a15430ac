package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfanzaky/txhook/internal/domain"
)

// TransactionRepository keeps transactions in process memory.
// Every operation runs under one mutex, which gives the same single-claimant
// guarantee a conditional UPDATE gives in Postgres.
type TransactionRepository struct {
	mu           sync.Mutex
	transactions map[string]domain.Transaction
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates an empty in-memory store
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[string]domain.Transaction),
	}
}

func (r *TransactionRepository) InsertOrFetch(_ context.Context, in *domain.TransactionInput, now time.Time) (*domain.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.transactions[in.TransactionID]; ok {
		return copyOf(existing), false, nil
	}

	tx := domain.Transaction{
		TransactionID:      in.TransactionID,
		SourceAccount:      in.SourceAccount,
		DestinationAccount: in.DestinationAccount,
		Amount:             in.Amount,
		Currency:           in.Currency,
		Status:             domain.StatusReceived,
		CreatedAt:          now,
	}
	r.transactions[in.TransactionID] = tx
	return copyOf(tx), true, nil
}

func (r *TransactionRepository) GetByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return copyOf(tx), nil
}

func (r *TransactionRepository) TryClaim(_ context.Context, transactionID string, now time.Time, staleBefore *time.Time) (*domain.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return nil, false, nil
	}

	switch {
	case tx.Status == domain.StatusReceived:
	case tx.Status == domain.StatusProcessing && tx.ClaimToken == "":
	case tx.Status == domain.StatusProcessing && staleBefore != nil &&
		tx.ClaimedAt != nil && tx.ClaimedAt.Before(*staleBefore):
	default:
		return nil, false, nil
	}

	claimedAt := now
	tx.Status = domain.StatusProcessing
	tx.ClaimedAt = &claimedAt
	tx.ClaimToken = uuid.NewString()
	r.transactions[transactionID] = tx
	return copyOf(tx), true, nil
}

func (r *TransactionRepository) ReleaseClaim(_ context.Context, transactionID, claimToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[transactionID]
	if !ok || !holds(tx, claimToken) {
		return domain.ErrNotClaimed
	}

	tx.ClaimedAt = nil
	tx.ClaimToken = ""
	r.transactions[transactionID] = tx
	return nil
}

func (r *TransactionRepository) Finalize(_ context.Context, transactionID, claimToken string, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[transactionID]
	if !ok || !holds(tx, claimToken) {
		return domain.ErrNotClaimed
	}

	at := processedAt
	tx.Status = domain.StatusProcessed
	tx.ProcessedAt = &at
	r.transactions[transactionID] = tx
	return nil
}

func (r *TransactionRepository) GetStuck(_ context.Context, staleBefore time.Time, limit int) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stuck []*domain.Transaction
	for _, tx := range r.transactions {
		if tx.Status == domain.StatusProcessing && tx.ClaimedAt != nil && tx.ClaimedAt.Before(staleBefore) {
			stuck = append(stuck, copyOf(tx))
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].ClaimedAt.Before(*stuck[j].ClaimedAt)
	})
	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}

func (r *TransactionRepository) CountByStatus(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, 3)
	for _, tx := range r.transactions {
		counts[tx.Status]++
	}
	return counts, nil
}

func (r *TransactionRepository) Ping(_ context.Context) error {
	return nil
}

func holds(tx domain.Transaction, claimToken string) bool {
	return tx.Status == domain.StatusProcessing && claimToken != "" && tx.ClaimToken == claimToken
}

// copyOf detaches the returned record from the map entry
func copyOf(tx domain.Transaction) *domain.Transaction {
	out := tx
	if tx.ClaimedAt != nil {
		at := *tx.ClaimedAt
		out.ClaimedAt = &at
	}
	if tx.ProcessedAt != nil {
		at := *tx.ProcessedAt
		out.ProcessedAt = &at
	}
	return &out
}
