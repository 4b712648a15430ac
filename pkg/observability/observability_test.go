package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(h *MetricsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ObservabilityMiddleware())
	r.GET("/ready", h.ReadinessEndpoint())
	r.GET("/live", h.LivenessEndpoint())
	r.GET("/metrics", h.MetricsEndpoint())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceIDFromContext(c.Request.Context()))
	})
	return r
}

func TestMiddleware_PropagatesTraceID(t *testing.T) {
	r := newRouter(NewMetricsHandler("test", nil))

	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(TraceIDHeader) != "abc-123" || w.Body.String() != "abc-123" {
		t.Fatalf("trace id not propagated: header=%q body=%q", w.Header().Get(TraceIDHeader), w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trace", nil))
	if w.Header().Get(TraceIDHeader) == "" {
		t.Fatalf("expected a generated trace id")
	}
}

func TestReadiness_ReportsFailingDependency(t *testing.T) {
	h := NewMetricsHandler("test", map[string]Pinger{
		"store": pingFunc(func(context.Context) error { return nil }),
		"queue": pingFunc(func(context.Context) error { return errors.New("redis down") }),
	})
	r := newRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "not_ready" || body.Checks["store"] != "ok" || body.Checks["queue"] != "redis down" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMetricsEndpoint_ExposesHTTPMetrics(t *testing.T) {
	r := newRouter(NewMetricsHandler("test", nil))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("expected http_requests_total in metrics output")
	}
}
