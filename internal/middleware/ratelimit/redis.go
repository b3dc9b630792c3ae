package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	applog "cashtimachann/internal/log"
)

// LoginKeyPrefix namespaces login attempt counters.
const LoginKeyPrefix = "rl:login:"

// RedisLimiter counts requests with INCR and a one-minute EXPIRE so the
// limit holds across dashboard replicas. Redis errors fail open.
type RedisLimiter struct {
	client    *redis.Client
	prefix    string
	maxPerMin int
	logger    *applog.Logger
}

// NewRedisLimiter creates a limiter storing counters under prefix+key.
func NewRedisLimiter(client *redis.Client, prefix string, maxPerMin int, logger *applog.Logger) *RedisLimiter {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &RedisLimiter{
		client:    client,
		prefix:    prefix,
		maxPerMin: maxPerMin,
		logger:    logger.WithComponent(applog.ComponentRateLimit),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := l.prefix + key
	cnt, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "Rate limit counter unavailable, allowing request",
			applog.FieldError, err.Error())
		return true
	}
	if cnt == 1 {
		l.client.Expire(ctx, k, time.Minute)
	}
	return cnt <= int64(l.maxPerMin)
}

// Reset clears the counter for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) {
	l.client.Del(ctx, l.prefix+key)
}
