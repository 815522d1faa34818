package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript runs the same interval refill as Bucket.TryConsume atomically
// inside Redis so several gateway instances share one budget per client.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

type RedisLimiter struct {
	client redis.Scripter
	cfg    Config
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisLimiter keeps each bucket for ttl after its last use; a zero ttl
// keeps it for long enough to refill completely.
func NewRedisLimiter(client redis.Scripter, cfg Config, prefix string, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = fullRefillTime(cfg)
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix, ttl: ttl, now: time.Now}
}

// Allow fails open: if Redis is unreachable the request proceeds.
func (l *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	args := []any{
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.Period.Milliseconds(),
		int64(l.ttl / time.Second),
	}

	vals, err := bucketScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, args...).Int64Slice()
	if err != nil || len(vals) != 3 {
		if err == nil {
			err = fmt.Errorf("unexpected script result length %d", len(vals))
		}
		slog.Warn("redis rate limiter unavailable, allowing request", "component", "ratelimit", "key", key, "error", err)
		return Decision{Allowed: true, Remaining: UnknownRemaining}
	}

	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}
}

func fullRefillTime(cfg Config) time.Duration {
	if cfg.RefillTokens <= 0 || cfg.Period <= 0 {
		return time.Hour
	}
	periods := (cfg.Capacity + cfg.RefillTokens - 1) / cfg.RefillTokens
	ttl := time.Duration(periods+1) * cfg.Period
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
