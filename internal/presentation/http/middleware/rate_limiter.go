package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
	"golang.org/x/time/rate"
)

// ActorRateLimiter limits requests per authenticated user, falling back to
// the client IP before authentication.
type ActorRateLimiter struct {
	limiters map[string]*rateLimiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	entryTTL time.Duration
	now      func() time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig holds configuration for the rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	EntryTTL          time.Duration // how long to keep unused entries
}

// NewActorRateLimiter creates a per-actor rate limiter
func NewActorRateLimiter(cfg RateLimiterConfig) *ActorRateLimiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 10 * time.Minute
	}
	return &ActorRateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		entryTTL: cfg.EntryTTL,
		now:      time.Now,
	}
}

func (rl *ActorRateLimiter) getLimiter(actor string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[actor]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[actor] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Cleanup removes entries unused for longer than the entry TTL
func (rl *ActorRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.entryTTL)
	for actor, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, actor)
		}
	}
}

// Middleware returns a gin middleware applying the limit
func (rl *ActorRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := "ip:" + c.ClientIP()
		if id, ok := c.Get(UserIDKey); ok {
			if userID, ok := id.(uuid.UUID); ok && userID != uuid.Nil {
				actor = "user:" + userID.String()
			}
		}

		limiter := rl.getLimiter(actor)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}
