package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/alfanzaky/txhook/internal/domain"
	redisrepo "github.com/alfanzaky/txhook/internal/repository/redis"
)

func newQueue(t *testing.T) (domain.QueueRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisrepo.NewQueueRepository(client, redisrepo.QueueOptions{
		Name:      "usecase-test",
		ResultTTL: time.Hour,
	}), mr
}

func payload(id string) *domain.TransactionInput {
	return &domain.TransactionInput{
		TransactionID:      id,
		SourceAccount:      "A",
		DestinationAccount: "B",
		Amount:             decimal.RequireFromString("100.0"),
		Currency:           "USD",
	}
}

type confirmFunc func(ctx context.Context, transaction *domain.Transaction) error

func (f confirmFunc) Confirm(ctx context.Context, transaction *domain.Transaction) error {
	return f(ctx, transaction)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.TransactionProcessedEvent
	err    error
}

func (p *recordingPublisher) PublishProcessed(_ context.Context, event *domain.TransactionProcessedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// downStore fails every call the way an unreachable database would
type downStore struct {
	domain.TransactionRepository
}

var errConnRefused = errors.New("connection refused")

func (downStore) InsertOrFetch(context.Context, *domain.TransactionInput, time.Time) (*domain.Transaction, bool, error) {
	return nil, false, domain.StoreError("insert transaction", errConnRefused)
}

func (downStore) TryClaim(context.Context, string, time.Time, *time.Time) (*domain.Transaction, bool, error) {
	return nil, false, domain.StoreError("claim transaction", errConnRefused)
}

func (downStore) GetStuck(context.Context, time.Time, int) ([]*domain.Transaction, error) {
	return nil, domain.StoreError("get stuck transactions", errConnRefused)
}

func (downStore) CountByStatus(context.Context) (map[string]int, error) {
	return nil, domain.StoreError("count transactions", errConnRefused)
}

// flakyQueue fails the first failures Enqueue calls
type flakyQueue struct {
	domain.QueueRepository
	failures int
}

func (q *flakyQueue) Enqueue(ctx context.Context, key, payload string) (bool, error) {
	if q.failures > 0 {
		q.failures--
		return false, domain.QueueError("enqueue task", errConnRefused)
	}
	return q.QueueRepository.Enqueue(ctx, key, payload)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
