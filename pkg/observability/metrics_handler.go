package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsHandler provides Prometheus metrics and health endpoints
type MetricsHandler struct {
	service string
	checks  map[string]Pinger
	timeout time.Duration
}

// NewMetricsHandler creates a new metrics handler. checks are pinged by /ready.
func NewMetricsHandler(service string, checks map[string]Pinger) *MetricsHandler {
	return &MetricsHandler{
		service: service,
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// MetricsEndpoint serves the default registry, where promauto registers
func (h *MetricsHandler) MetricsEndpoint() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// HealthEndpoint provides a basic health check
func (h *MetricsHandler) HealthEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   h.service,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessEndpoint pings every dependency and reports 503 if any is down
func (h *MetricsHandler) ReadinessEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		status := http.StatusOK
		results := make(gin.H, len(h.checks))
		for name, check := range h.checks {
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		c.JSON(status, gin.H{
			"status": state,
			"checks": results,
		})
	}
}

// LivenessEndpoint provides liveness check
func (h *MetricsHandler) LivenessEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
		})
	}
}
