package httpmiddleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, fractional)
// ARGV[4] = key ttl (seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return {allowed, tostring(tokens)}
`)

// RedisTokenBucket is a Limiter shared by every replica using the same
// Redis. It allows bursts of up to max requests and refills at max per
// window.
type RedisTokenBucket struct {
	client redis.Scripter
	prefix string
	max    int
	rate   float64
	ttl    int
}

var _ Limiter = (*RedisTokenBucket)(nil)

// NewRedisTokenBucket creates a Redis backed limiter. Keys are stored under
// prefix.
func NewRedisTokenBucket(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisTokenBucket {
	return &RedisTokenBucket{
		client: client,
		prefix: prefix,
		max:    limit,
		rate:   float64(limit) / window.Seconds(),
		ttl:    int(math.Ceil(2 * window.Seconds())),
	}
}

// Allow implements Limiter.
func (l *RedisTokenBucket) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	ts := float64(now.UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rate, l.max, ts, l.ttl).Slice()
	if err != nil {
		return Decision{}, errors.Wrap(err, "run token bucket")
	}
	if len(res) != 2 {
		return Decision{}, errors.Errorf("unexpected token bucket reply of %d elements", len(res))
	}
	allowed, _ := res[0].(int64)
	s, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Decision{}, errors.Wrap(err, "parse tokens")
	}
	return l.decide(allowed == 1, tokens, now), nil
}

func (l *RedisTokenBucket) decide(allowed bool, tokens float64, now time.Time) Decision {
	d := Decision{Allowed: allowed, Remaining: int(math.Floor(tokens))}
	// Rejected callers wait for the next token, others for a full bucket.
	missing := float64(l.max) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	d.ResetAt = now.Add(time.Duration(missing / l.rate * float64(time.Second)))
	return d
}
