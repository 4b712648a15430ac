package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestStore_AllowsBurstThenRejects(t *testing.T) {
	s := NewPerMinute(3)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if !s.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if s.Allow("1.2.3.4") {
		t.Fatalf("fourth request within the same instant should be rejected")
	}
	if !s.Allow("5.6.7.8") {
		t.Fatalf("other clients have their own bucket")
	}

	fixed = fixed.Add(20 * time.Second)
	if !s.Allow("1.2.3.4") {
		t.Fatalf("a token should refill after 20s at 3/min")
	}
}

func TestStore_CleanupDropsIdleKeys(t *testing.T) {
	s := NewPerMinute(10)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Allow("a")
	fixed = fixed.Add(time.Hour)
	s.Allow("b")
	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected only the recent key to remain, got %d", s.Len())
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", Middleware(NewPerMinute(1)), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/hook", nil))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/hook", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
