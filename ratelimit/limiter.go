// Package ratelimit throttles sign-in and password reset requests with
// fixed-window counters in Redis. The increment and the window TTL are set by
// one script so a counter never outlives its window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps failures talking to Redis
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config tunes a RedisLimiter
type Config struct {
	// Limit is the number of requests allowed per key per Window. Defaults to 10.
	Limit int

	// Window defaults to one minute
	Window time.Duration

	// Prefix is prepended to every key. Defaults to "credauth:rl:".
	Prefix string
}

// incrWithTTLLua increments KEYS[1] and sets a PEXPIRE of ARGV[1] ms when the
// key has none, including counters left without a TTL by older writers.
var incrWithTTLLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter implements credauth.RateLimiter
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a limiter backed by the given Redis client
func New(client redis.UniversalClient, cfg Config) *RedisLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "credauth:rl:"
	}
	return &RedisLimiter{redis: client, config: cfg}
}

// Allow counts a request for key and reports whether it is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.incrementWithTTL(ctx, l.config.Prefix+key)
	if err != nil {
		return false, err
	}
	return count <= int64(l.config.Limit), nil
}

// Reset clears the counter for key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := incrWithTTLLua.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
