package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
)

// QueueOptions defines delivery and retry policy for the queue
type QueueOptions struct {
	Name              string
	MaxRetries        int
	RetryBackoff      []time.Duration
	VisibilityTimeout time.Duration
	ResultTTL         time.Duration
	Now               func() time.Time
}

type queueRepository struct {
	client *redis.Client
	opts   QueueOptions

	pendingKey   string
	activeKey    string
	scheduledKey string
	failedKey    string
	taskPrefix   string
}

var _ domain.QueueRepository = (*queueRepository)(nil)

// staleDelivery is what the ack and fail scripts return for a superseded attempt
const staleDelivery = -1

// NewQueueRepository creates a Redis backed work queue.
// Tasks are keyed, so a key already queued, running, scheduled for retry or
// finished within ResultTTL is never queued twice.
func NewQueueRepository(client *redis.Client, opts QueueOptions) *queueRepository {
	if opts.Name == "" {
		opts.Name = "transactions"
	}
	if len(opts.RetryBackoff) == 0 {
		opts.RetryBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	prefix := "queue:" + opts.Name + ":"
	return &queueRepository{
		client:       client,
		opts:         opts,
		pendingKey:   prefix + "pending",
		activeKey:    prefix + "active",
		scheduledKey: prefix + "scheduled",
		failedKey:    prefix + "failed",
		taskPrefix:   prefix + "task:",
	}
}

func (r *queueRepository) Enqueue(ctx context.Context, key, payload string) (bool, error) {
	now := r.opts.Now()

	res, err := enqueueScript.Run(ctx, r.client,
		[]string{r.taskKey(key), r.pendingKey, r.failedKey},
		key, payload, millis(now),
	).Int()
	if err != nil {
		logger.Error("Failed to enqueue task",
			logger.String("task_key", key),
			logger.ErrorField(err),
		)
		return false, domain.QueueError("enqueue task", err)
	}

	enqueued := res == 1
	metrics.RecordEnqueue(r.opts.Name, enqueued)
	if enqueued {
		logger.Debug("Task enqueued", logger.String("task_key", key))
	} else {
		logger.Debug("Task already known to queue, skipping", logger.String("task_key", key))
	}

	return enqueued, nil
}

func (r *queueRepository) Dequeue(ctx context.Context) (*domain.Task, error) {
	now := r.opts.Now()
	deadline := now.Add(r.opts.VisibilityTimeout)

	res, err := dequeueScript.Run(ctx, r.client,
		[]string{r.pendingKey, r.activeKey},
		millis(now), millis(deadline), r.taskPrefix,
	).Slice()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No items in queue
		}
		logger.Error("Failed to dequeue task", logger.ErrorField(err))
		return nil, domain.QueueError("dequeue task", err)
	}

	if len(res) < 3 {
		return nil, fmt.Errorf("unexpected dequeue result format: %v", res)
	}

	key, _ := res[0].(string)
	payload, _ := res[1].(string)
	attempts, _ := res[2].(int64)

	return &domain.Task{
		Key:       key,
		Payload:   payload,
		Attempt:   int(attempts),
		Delivered: now,
	}, nil
}

func (r *queueRepository) Ack(ctx context.Context, task *domain.Task) error {
	res, err := ackScript.Run(ctx, r.client,
		[]string{r.taskKey(task.Key), r.activeKey},
		task.Key, millis(r.opts.Now()), r.opts.ResultTTL.Milliseconds(), task.Attempt,
	).Int()
	if err != nil {
		logger.Error("Failed to ack task",
			logger.String("task_key", task.Key),
			logger.ErrorField(err),
		)
		return domain.QueueError("ack task", err)
	}
	if res == staleDelivery {
		return domain.ErrStaleDelivery
	}

	metrics.RecordTaskResult(r.opts.Name, "succeeded")
	return nil
}

func (r *queueRepository) Fail(ctx context.Context, task *domain.Task, cause error) (bool, error) {
	now := r.opts.Now()

	args := []interface{}{task.Key, millis(now), r.opts.MaxRetries, errorText(cause), task.Attempt}
	for _, delay := range r.opts.RetryBackoff {
		args = append(args, millis(now.Add(delay)))
	}

	res, err := failScript.Run(ctx, r.client,
		[]string{r.taskKey(task.Key), r.activeKey, r.scheduledKey, r.failedKey},
		args...,
	).Int()
	if err != nil {
		logger.Error("Failed to record task failure",
			logger.String("task_key", task.Key),
			logger.ErrorField(err),
		)
		return false, domain.QueueError("fail task", err)
	}
	if res == staleDelivery {
		return false, domain.ErrStaleDelivery
	}

	if res == 1 {
		metrics.RecordTaskResult(r.opts.Name, "retried")
		logger.Warn("Task failed, retry scheduled",
			logger.String("task_key", task.Key),
			logger.Int("attempt", task.Attempt),
			logger.ErrorField(cause),
		)
		return true, nil
	}

	metrics.RecordTaskResult(r.opts.Name, "failed")
	logger.Error("Task failed permanently, moved to failed registry",
		logger.String("task_key", task.Key),
		logger.Int("attempt", task.Attempt),
		logger.ErrorField(cause),
	)
	return false, nil
}

func (r *queueRepository) Promote(ctx context.Context) (int, error) {
	moved, err := promoteScript.Run(ctx, r.client,
		[]string{r.scheduledKey, r.activeKey, r.pendingKey},
		millis(r.opts.Now()), r.taskPrefix,
	).Int()
	if err != nil {
		return 0, domain.QueueError("promote tasks", err)
	}

	if moved > 0 {
		logger.Debug("Promoted due tasks", logger.Int("count", moved))
	}
	return moved, nil
}

func (r *queueRepository) Requeue(ctx context.Context, key, payload string) error {
	err := requeueScript.Run(ctx, r.client,
		[]string{r.taskKey(key), r.pendingKey, r.activeKey, r.scheduledKey, r.failedKey},
		key, payload, millis(r.opts.Now()),
	).Err()
	if err != nil {
		return domain.QueueError("requeue task", err)
	}

	logger.Info("Task force requeued", logger.String("task_key", key))
	return nil
}

func (r *queueRepository) FailedTasks(ctx context.Context, limit int) ([]*domain.TaskInfo, error) {
	if limit <= 0 {
		limit = 100
	}

	keys, err := r.client.ZRevRange(ctx, r.failedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, domain.QueueError("list failed tasks", err)
	}

	tasks := make([]*domain.TaskInfo, 0, len(keys))
	for _, key := range keys {
		info, err := r.GetTask(ctx, key)
		if err != nil {
			if err == domain.ErrTaskNotFound {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, info)
	}
	return tasks, nil
}

func (r *queueRepository) GetTask(ctx context.Context, key string) (*domain.TaskInfo, error) {
	fields, err := r.client.HGetAll(ctx, r.taskKey(key)).Result()
	if err != nil {
		return nil, domain.QueueError("get task", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrTaskNotFound
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return &domain.TaskInfo{
		Key:       key,
		Payload:   fields["payload"],
		Status:    fields["status"],
		Attempts:  attempts,
		LastError: fields["last_error"],
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}, nil
}

func (r *queueRepository) GetQueueLength(ctx context.Context) (int64, error) {
	length, err := r.client.LLen(ctx, r.pendingKey).Result()
	if err != nil {
		logger.Error("Failed to get queue length", logger.ErrorField(err))
		return 0, domain.QueueError("queue length", err)
	}

	metrics.SetQueueSize(r.opts.Name, float64(length))
	return length, nil
}

// Health check
func (r *queueRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.QueueError("ping", err)
	}
	return nil
}

func (r *queueRepository) taskKey(key string) string {
	return r.taskPrefix + key
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
