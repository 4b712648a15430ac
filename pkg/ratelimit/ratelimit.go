package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/alfanzaky/txhook/pkg/logger"
	"github.com/alfanzaky/txhook/pkg/xresponse"
)

// Store keeps one token bucket per client key and forgets idle keys
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPerMinute allows perMinute requests per key per minute with an equal burst
func NewPerMinute(perMinute int) *Store {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Store{
		entries: make(map[string]*entry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
}

// Allow consumes one token for key
func (s *Store) Allow(key string) bool {
	now := s.now()

	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok {
		ent = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	s.mu.Unlock()

	return ent.limiter.AllowN(now, 1)
}

// Cleanup drops keys idle for longer than the idle TTL
func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of tracked keys
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Middleware rejects requests over the limit with 429, keyed by client IP
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !store.Allow(key) {
			logger.Warn("Rate limit exceeded",
				logger.String("client_ip", key),
				logger.String("path", c.FullPath()),
			)
			c.Header("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			xresponse.RateLimitExceeded(c, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
