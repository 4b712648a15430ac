package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/observability"
	"github.com/alfanzaky/txhook/pkg/xresponse"
)

// TransactionHandler handles webhook ingestion and status queries
type TransactionHandler struct {
	ingestionUC domain.IngestionUsecase
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(ingestionUC domain.IngestionUsecase) *TransactionHandler {
	return &TransactionHandler{ingestionUC: ingestionUC}
}

// WebhookRequest represents an inbound transaction notification
type WebhookRequest struct {
	TransactionID      string           `json:"transaction_id" binding:"required"`
	SourceAccount      string           `json:"source_account" binding:"required"`
	DestinationAccount string           `json:"destination_account" binding:"required"`
	Amount             *decimal.Decimal `json:"amount" binding:"required"`
	Currency           string           `json:"currency" binding:"required"`
}

// TransactionResponse represents the status query response
type TransactionResponse struct {
	TransactionID      string      `json:"transaction_id"`
	SourceAccount      string      `json:"source_account"`
	DestinationAccount string      `json:"destination_account"`
	Amount             json.Number `json:"amount"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	ProcessedAt        *time.Time  `json:"processed_at,omitempty"`
}

// FieldError describes one invalid request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ReceiveWebhook records a transaction and schedules it for processing
func (h *TransactionHandler) ReceiveWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid webhook body",
			logger.String("trace_id", observability.GetTraceID(c)),
			logger.ErrorField(err),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			xresponse.Error(c, http.StatusRequestEntityTooLarge, xresponse.ErrCodeValidationFailed, "Request body too large")
			return
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			xresponse.ValidationError(c, fieldErrors(verrs))
			return
		}
		xresponse.BadRequest(c, "Invalid request format")
		return
	}

	in := &domain.TransactionInput{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             *req.Amount,
		Currency:           req.Currency,
	}

	result, err := h.ingestionUC.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "Failed to accept webhook")
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// GetTransaction returns the current record for a transaction id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	transactionID := strings.TrimSpace(c.Param("id"))

	transaction, err := h.ingestionUC.GetStatus(c.Request.Context(), transactionID)
	if err != nil {
		h.respondError(c, err, "Failed to get transaction")
		return
	}

	c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

// Health reports liveness with the server clock
func (h *TransactionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "HEALTHY",
		"current_time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *TransactionHandler) respondError(c *gin.Context, err error, message string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		xresponse.BadRequest(c, verr.Reason)
	case errors.Is(err, domain.ErrInvalidPayload):
		xresponse.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrTransactionNotFound):
		xresponse.NotFound(c, "Transaction not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		observability.RecordSystemError(c, "store_unavailable", "transaction_handler", err)
		xresponse.ServiceUnavailable(c, "Transaction store unavailable, retry later")
	case errors.Is(err, domain.ErrQueueUnavailable):
		observability.RecordSystemError(c, "queue_unavailable", "transaction_handler", err)
		xresponse.ServiceUnavailable(c, "Work queue unavailable, retry later")
	default:
		observability.RecordSystemError(c, "internal", "transaction_handler", err)
		xresponse.InternalServerError(c, message)
	}
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:      t.TransactionID,
		SourceAccount:      t.SourceAccount,
		DestinationAccount: t.DestinationAccount,
		Amount:             json.Number(t.Amount.String()),
		Currency:           t.Currency,
		Status:             t.Status,
		CreatedAt:          t.CreatedAt,
		ProcessedAt:        t.ProcessedAt,
	}
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: jsonFieldName(fe.Field()), Rule: fe.Tag()})
	}
	return out
}

var requestFieldNames = map[string]string{
	"TransactionID":      "transaction_id",
	"SourceAccount":      "source_account",
	"DestinationAccount": "destination_account",
	"Amount":             "amount",
	"Currency":           "currency",
}

func jsonFieldName(field string) string {
	if name, ok := requestFieldNames[field]; ok {
		return name
	}
	return field
}
