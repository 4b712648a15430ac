package xresponse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents error response format
type ErrorResponse struct {
	Code      int         `json:"code"`
	Status    string      `json:"status"`
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Common error codes
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// Error sends error response
func Error(c *gin.Context, statusCode int, errorCode, message string) {
	c.JSON(statusCode, NewErrorResponse(statusCode, errorCode, message, nil))
}

// ErrorWithDetails sends error response with details
func ErrorWithDetails(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, NewErrorResponse(statusCode, errorCode, message, details))
}

// BadRequest sends 400 Bad Request response
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// ValidationError sends validation error response with field details
func ValidationError(c *gin.Context, details interface{}) {
	ErrorWithDetails(c, http.StatusBadRequest, ErrCodeValidationFailed, "Validation failed", details)
}

// NotFound sends 404 Not Found response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalServerError sends 500 Internal Server Error response
func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable sends 503 when a backing store or queue cannot be reached
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// RateLimitExceeded sends 429 Rate Limit Exceeded error response
func RateLimitExceeded(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, message)
}

// NewErrorResponse builds the error envelope
func NewErrorResponse(code int, errorCode, message string, details interface{}) ErrorResponse {
	return ErrorResponse{
		Code:      code,
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}
