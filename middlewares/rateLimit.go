package middlewares

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter counts in redis and falls back to in-process buckets while
// redis is unavailable.
type RateLimiter struct {
	mu       sync.Mutex
	limiter  *redis_rate.Limiter
	fallback *localLimiter
}

var (
	rateLimiter     *RateLimiter
	rateLimiterOnce sync.Once
)

func getRateLimiter() *RateLimiter {
	rateLimiterOnce.Do(func() {
		rateLimiter = &RateLimiter{fallback: newLocalLimiter()}
	})
	return rateLimiter
}

// redis may connect after startup
func (rl *RateLimiter) redisLimiter() *redis_rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.limiter == nil {
		if client := config.GetRedisDB(); client != nil {
			rl.limiter = redis_rate.NewLimiter(client)
		}
	}
	return rl.limiter
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limiter := rl.redisLimiter(); limiter != nil {
		res, err := limiter.Allow(ctx, rateLimitPrefix+key, limit)
		if err == nil {
			return res, nil
		}
		config.LogErrorCtx(ctx, "middlewares", "RateLimiter.Allow", "redis", key, err)
	}
	return rl.fallback.allow(key, limit), nil
}

func PerMinute(n int) redis_rate.Limit {
	return redis_rate.PerMinute(n)
}

func PerHour(n int) redis_rate.Limit {
	return redis_rate.PerHour(n)
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(requestsPerMinute int) gin.HandlerFunc {
	limit := PerMinute(requestsPerMinute)
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		res, err := getRateLimiter().Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", retryAfter),
			})
			return
		}
		c.Next()
	}
}

// CheckRateLimit consumes one unit of key against perHour; zero disables the check.
func CheckRateLimit(ctx context.Context, key string, perHour int, message string) error {
	if perHour <= 0 {
		return nil
	}
	res, err := getRateLimiter().Allow(ctx, key, PerHour(perHour))
	if err != nil {
		return err
	}
	if res.Allowed == 0 {
		return utils.NewTooManyRequests(message)
	}
	return nil
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

const localEntryTTL = 2 * time.Hour

func newLocalLimiter() *localLimiter {
	return &localLimiter{limiters: map[string]*limiterEntry{}}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if now.Sub(e.lastAccess) > localEntryTTL {
			delete(l.limiters, k)
		}
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now

	allowed := entry.limiter.AllowN(now, 1)
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: time.Duration(float64(time.Second) / ratePerSec),
	}
	if allowed {
		res.Allowed = 1
	} else {
		res.RetryAfter = time.Duration(float64(time.Second) / ratePerSec)
	}
	return res
}
