package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per identity (API key or IP). Share one
// Limiter between route groups so a client has a single budget.
type Limiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// NewLimiter creates a Limiter. Entries unused for 1 hour are evicted every
// 5 minutes until stop is closed.
func NewLimiter(cfg config.RateLimitConfig, stop <-chan struct{}) *Limiter {
	l := &Limiter{cfg: cfg, limiters: make(map[string]*limiterEntry)}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.evict(time.Now().Add(-1 * time.Hour))
			}
		}
	}()
	return l
}

func (l *Limiter) get(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.limiters[identity] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (l *Limiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
		}
	}
}

// RateLimit returns token-bucket rate limiting middleware powered by
// golang.org/x/time/rate. A nil reject uses RejectJSON.
func RateLimit(l *Limiter, reject Reject) gin.HandlerFunc {
	if reject == nil {
		reject = RejectJSON
	}
	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString("api_key")
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.get(identity).Allow() {
			reject(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}
