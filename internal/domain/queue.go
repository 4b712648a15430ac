package domain

import (
	"context"
	"time"
)

// Task lifecycle inside the work queue
const (
	TaskQueued    = "queued"
	TaskActive    = "active"
	TaskScheduled = "scheduled"
	TaskFinished  = "finished"
	TaskFailed    = "failed"
)

// Task is one delivery of a queued unit of work.
// Attempt starts at 1 for the first delivery and identifies the delivery:
// Ack and Fail for an attempt that was since redelivered return ErrStaleDelivery.
type Task struct {
	Key       string
	Payload   string
	Attempt   int
	Delivered time.Time
}

// TaskInfo describes a task as stored by the queue, for operators
type TaskInfo struct {
	Key       string    `json:"key"`
	Payload   string    `json:"payload"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueRepository defines the contract for the background work queue
// that transports transaction IDs to workers with at-least-once delivery.
type QueueRepository interface {
	// Enqueue submits a task. A key that is queued, active, scheduled or
	// finished is not resubmitted and enqueued=false is returned.
	Enqueue(ctx context.Context, key, payload string) (enqueued bool, err error)
	// Dequeue hands out the next ready task, or nil when none is ready.
	Dequeue(ctx context.Context) (*Task, error)
	// Ack marks a delivered task as finished.
	// It returns ErrStaleDelivery when the task was redelivered meanwhile.
	Ack(ctx context.Context, task *Task) error
	// Fail records a failed attempt and either schedules a retry or moves the
	// task to the failed registry. It reports whether a retry was scheduled,
	// or returns ErrStaleDelivery when the task was redelivered meanwhile.
	Fail(ctx context.Context, task *Task, cause error) (retrying bool, err error)
	// Promote moves due retries and expired deliveries back to pending.
	Promote(ctx context.Context) (int, error)
	// Requeue forces a task back to pending regardless of its state.
	Requeue(ctx context.Context, key, payload string) error
	FailedTasks(ctx context.Context, limit int) ([]*TaskInfo, error)
	GetTask(ctx context.Context, key string) (*TaskInfo, error)
	GetQueueLength(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
