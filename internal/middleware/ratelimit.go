package middleware

import (
	"sync"
	"time"

	"greencoin-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per actor (or per IP before login).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	log      zerolog.Logger
}

func NewRateLimiter(rps float64, burst int, log zerolog.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if id, ok := ActorID(c); ok {
			key = "actor:" + id.String()
		}
		if !rl.get(key).Allow() {
			rl.log.Warn().Str("key", key).Str("path", c.Path()).Str("trace_id", GetTraceID(c)).Msg("rate limit exceeded")
			c.Set("Retry-After", "1")
			return response.Error(c, "Too many requests", fiber.StatusTooManyRequests, nil)
		}
		return c.Next()
	}
}

// Prune drops limiters idle for longer than idle. The scheduler calls it periodically.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	removed := 0
	for k, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
			removed++
		}
	}
	return removed
}
