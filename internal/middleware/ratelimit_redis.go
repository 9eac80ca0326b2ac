package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter shares limits across replicas using the GCRA limiter in
// redis_rate. When Redis is unreachable requests are allowed and the error is
// logged.
type RedisRateLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter connects to addr and verifies the connection with PING.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int, cfg RateLimitConfig) (*RedisRateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newRedisRateLimiter(client, cfg), nil
}

func newRedisRateLimiter(client *redis.Client, cfg RateLimitConfig) *RedisRateLimiter {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &RedisRateLimiter{
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  burst,
			Period: time.Minute,
		},
		prefix:  "serversoft:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

// Take implements Limiter.
func (rl *RedisRateLimiter) Take(ctx context.Context, key string) Decision {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		slog.Error("redis rate limiter error", "key", key, "error", err)
		return Decision{Allowed: true, Remaining: rl.limit.Burst}
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
}

// Limit implements Limiter.
func (rl *RedisRateLimiter) Limit() int {
	return rl.limit.Rate
}

// Close releases the Redis connection pool.
func (rl *RedisRateLimiter) Close() error {
	return rl.client.Close()
}
