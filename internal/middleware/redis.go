package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const fixedWindowLua = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// RedisRateLimiter is a fixed-window limiter shared by every process that
// talks to the same Redis.
type RedisRateLimiter struct {
	rdb    *redis.Client
	prefix string
	script *redis.Script
}

func NewRedisRateLimiter(rdb *redis.Client, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "quiz:ratelimit:"
	}
	return &RedisRateLimiter{
		rdb:    rdb,
		prefix: prefix,
		script: redis.NewScript(fixedWindowLua),
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit eval: %w", err)
	}
	return n <= int64(limit), nil
}
