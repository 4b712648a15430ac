package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/observability"
	"github.com/alfanzaky/txhook/pkg/xresponse"
)

const defaultFailedLimit = 50

// TaskHandler exposes queue state to operators
type TaskHandler struct {
	queueRepo domain.QueueRepository
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(queueRepo domain.QueueRepository) *TaskHandler {
	return &TaskHandler{queueRepo: queueRepo}
}

// ListFailed returns tasks that exhausted their retries, newest first
func (h *TaskHandler) ListFailed(c *gin.Context) {
	limit := defaultFailedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			xresponse.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	tasks, err := h.queueRepo.FailedTasks(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err, "Failed to list failed tasks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// GetTask returns the queue record for a task key
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.queueRepo.GetTask(c.Request.Context(), strings.TrimSpace(c.Param("key")))
	if err != nil {
		h.respondError(c, err, "Failed to get task")
		return
	}

	c.JSON(http.StatusOK, task)
}

// Requeue puts a known task back on the pending list
func (h *TaskHandler) Requeue(c *gin.Context) {
	ctx := c.Request.Context()
	key := strings.TrimSpace(c.Param("key"))

	task, err := h.queueRepo.GetTask(ctx, key)
	if err != nil {
		h.respondError(c, err, "Failed to requeue task")
		return
	}
	if err := h.queueRepo.Requeue(ctx, task.Key, task.Payload); err != nil {
		h.respondError(c, err, "Failed to requeue task")
		return
	}

	logger.Info("Task requeued by operator",
		logger.String("trace_id", observability.GetTraceID(c)),
		logger.String("task_key", task.Key),
		logger.String("previous_status", task.Status),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"key":    task.Key,
		"status": domain.TaskQueued,
	})
}

func (h *TaskHandler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		xresponse.NotFound(c, "Task not found")
	case errors.Is(err, domain.ErrQueueUnavailable):
		observability.RecordSystemError(c, "queue_unavailable", "task_handler", err)
		xresponse.ServiceUnavailable(c, "Work queue unavailable, retry later")
	default:
		observability.RecordSystemError(c, "internal", "task_handler", err)
		xresponse.InternalServerError(c, message)
	}
}
