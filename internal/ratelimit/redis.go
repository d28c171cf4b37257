package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketKeyPrefix = "ratelimit:"

// takeScript refills and consumes atomically on the Redis side so concurrent
// requests for the same key cannot race. The key expires after two idle
// windows; an expired key starts over with a full bucket.
var takeScript = redis.NewScript(`
local cost = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed >= window then
  local windows = math.floor(elapsed / window)
  tokens = math.min(capacity, tokens + windows * capacity)
  last = last + windows * window
end

local allowed = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)
redis.call('PEXPIRE', KEYS[1], window * 2)
return allowed
`)

// Redis is a Limiter backed by a shared Redis instance, making the limit
// global across service instances.
type Redis struct {
	client redis.Cmdable
	now    func() time.Time
}

// RedisOption configures the Redis limiter.
type RedisOption func(*Redis)

// WithRedisClock overrides the time source (tests).
func WithRedisClock(fn func() time.Time) RedisOption {
	return func(r *Redis) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryConsume implements Limiter.
func (r *Redis) TryConsume(ctx context.Context, key string, cost int64, policy Policy) (bool, error) {
	if cost <= 0 || policy.Capacity <= 0 || policy.Window <= 0 {
		return false, nil
	}

	res, err := takeScript.Run(ctx, r.client,
		[]string{bucketKeyPrefix + key},
		cost,
		policy.Capacity,
		policy.Window.Milliseconds(),
		r.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: take %s: %w", key, err)
	}
	return res == 1, nil
}
