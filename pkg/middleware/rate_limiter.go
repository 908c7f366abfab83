package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	pkgredis "github.com/rcn123/rpg-lobby/pkg/redis"
	"github.com/rcn123/rpg-lobby/pkg/response"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RateLimitConfig configures a token bucket per caller
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// RedisClient makes the bucket shared between instances when set
	RedisClient *pkgredis.Client
	KeyPrefix   string
	EntryTTL    time.Duration
}

// DefaultRateLimitConfig limits admission calls to a human pace
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 2,
		BurstSize:         10,
		KeyPrefix:         "ratelimit:",
		EntryTTL:          time.Minute,
	}
}

// Limiter decides whether a caller may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// LocalRateLimiter is an in-process token bucket limiter
type LocalRateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLocalRateLimiter creates a new local rate limiter
func NewLocalRateLimiter(config RateLimitConfig) *LocalRateLimiter {
	return &LocalRateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket
func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.config.BurstSize), lastUpdate: now}
		rl.buckets[key] = b
		rl.evictStale(now)
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(float64(rl.config.BurstSize), b.tokens+elapsed*rl.config.RequestsPerSecond)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// evictStale drops idle buckets; called with mu held
func (rl *LocalRateLimiter) evictStale(now time.Time) {
	if rl.config.EntryTTL <= 0 {
		return
	}
	cutoff := now.Add(-rl.config.EntryTTL)
	for k, b := range rl.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

tokens = math.min(burst, tokens + (now - last_update) * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_update", now)
redis.call("EXPIRE", key, ttl)
return allowed
`

// RedisRateLimiter shares token buckets between instances through Redis
type RedisRateLimiter struct {
	config RateLimitConfig
}

// NewRedisRateLimiter creates a new Redis rate limiter
func NewRedisRateLimiter(config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{config: config}
}

// Allow takes one token from key's shared bucket
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ttl := int(rl.config.EntryTTL.Seconds())
	if ttl <= 0 {
		ttl = 60
	}
	now := float64(time.Now().UnixNano()) / 1e9

	allowed, err := rl.config.RedisClient.EvalWithFallback(ctx, "token_bucket", tokenBucketScript,
		[]string{rl.config.KeyPrefix + key},
		rl.config.RequestsPerSecond,
		rl.config.BurstSize,
		now,
		ttl,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return allowed == 1, nil
}

// NewLimiter picks the Redis limiter when a client is configured
func NewLimiter(config RateLimitConfig) Limiter {
	if config.RedisClient != nil {
		return NewRedisRateLimiter(config)
	}
	return NewLocalRateLimiter(config)
}

// RateLimit throttles callers, keyed by user id when authenticated and by
// client IP otherwise. Limiter errors let the request through.
func RateLimit(limiter Limiter, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "middleware.rate_limit")
		defer span.End()

		key, ok := GetUserID(c)
		if !ok {
			key = c.ClientIP()
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			span.RecordError(err)
			allowed = true
		}
		span.SetAttributes(attribute.Bool("allowed", allowed))

		if !allowed {
			span.SetStatus(codes.Error, "rate limit exceeded")
			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.FormatFloat(config.RequestsPerSecond, 'f', -1, 64))
			response.Abort(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Rate limit exceeded. Please retry shortly.")
			return
		}

		span.SetStatus(codes.Ok, "")
		c.Next()
	}
}
