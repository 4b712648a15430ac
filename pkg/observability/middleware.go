package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/metrics"
)

// TraceIDKey is the context key for trace ID
type TraceIDKey string

const (
	// TraceIDHeader is the HTTP header for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDContextKey is the context key for trace ID
	TraceIDContextKey TraceIDKey = "trace_id"
)

// ObservabilityMiddleware provides trace ID generation and metrics collection
func ObservabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Generate or extract trace ID
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Header(TraceIDHeader, traceID)
		c.Set(string(TraceIDContextKey), traceID)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), traceID))

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, statusCode, duration)

		logger.Info("Request completed",
			logger.String("trace_id", traceID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.String("status", statusCode),
			logger.Float64("duration_ms", duration*1000),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// GetTraceID extracts trace ID from context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(string(TraceIDContextKey)); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetTraceIDFromContext extracts trace ID from context.Context
func GetTraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceID adds trace ID to context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// RecordSystemError records system error with metrics and logging
func RecordSystemError(c *gin.Context, errorType, component string, err error) {
	metrics.RecordSystemError(errorType, component)

	logger.Error("System error occurred",
		logger.String("trace_id", GetTraceID(c)),
		logger.String("error_type", errorType),
		logger.String("component", component),
		logger.ErrorField(err),
		logger.String("method", c.Request.Method),
		logger.String("path", c.Request.URL.Path),
	)
}
