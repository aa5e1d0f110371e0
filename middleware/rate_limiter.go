// middleware/rate_limiter.go

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dev-mohitbeniwal/archive-gateway/db"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// Allower decides whether the client identified by key may proceed.
type Allower interface {
	Allow(c *gin.Context, key string) (bool, error)
}

// RedisAllower is a sliding window shared by every gateway instance.
type RedisAllower struct {
	Limit int
	Per   time.Duration
}

func (a RedisAllower) Allow(c *gin.Context, key string) (bool, error) {
	return db.RateLimit(c.Request.Context(), key, a.Limit, a.Per)
}

// maxLocalClients bounds how many client buckets LocalAllower keeps.
const maxLocalClients = 10000

// LocalAllower keeps one token bucket per client in process. Buckets of
// clients idle for a whole period are dropped, a new one starts full as well.
type LocalAllower struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

func NewLocalAllower(limit int, per time.Duration) *LocalAllower {
	return newLocalAllower(limit, per, maxLocalClients)
}

func newLocalAllower(limit int, per time.Duration, size int) *LocalAllower {
	return &LocalAllower{
		limit:   rate.Limit(float64(limit) / per.Seconds()),
		burst:   limit,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, per),
	}
}

func (a *LocalAllower) Allow(_ *gin.Context, key string) (bool, error) {
	a.mu.Lock()
	l, ok := a.buckets.Get(key)
	if !ok {
		l = rate.NewLimiter(a.limit, a.burst)
	}
	// Add refreshes the expiry, so active clients keep their bucket.
	a.buckets.Add(key, l)
	a.mu.Unlock()
	return l.Allow(), nil
}

// RateLimiter allows limit requests per client IP and period. It uses Redis
// when it is connected and a local limiter otherwise. A limit of 0 disables it.
func RateLimiter(limit int, per time.Duration) gin.HandlerFunc {
	if limit <= 0 || per <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var allower Allower = NewLocalAllower(limit, per)
	if db.Enabled() {
		allower = RedisAllower{Limit: limit, Per: per}
	}
	return RateLimiterWith(allower, limit, per)
}

func RateLimiterWith(allower Allower, limit int, per time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		allowed, err := allower.Allow(c, key)
		if err != nil {
			logger.Error("Rate limiting failed", zap.Error(err), zap.String("ip", key))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Rate limiting failed"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Duration", per.String())

		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("ip", key),
				zap.Int("limit", limit),
				zap.Duration("per", per))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": gwerrors.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}
