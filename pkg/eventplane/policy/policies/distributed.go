package policies

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// Limit describes a token bucket.
type Limit struct {
	PerSecond float64
	Burst     int
}

// LimiterStore holds token buckets shared between processes.
type LimiterStore interface {
	// Allow takes cost tokens from the bucket for key. It reports false
	// when the bucket does not hold enough tokens.
	Allow(ctx context.Context, key string, limit Limit, cost int) (bool, error)
}

// DistributedRateLimit is RateLimit backed by a LimiterStore. Store errors
// fail the invocation rather than letting the event through.
func DistributedRateLimit(store LimiterStore, limit Limit, keyFn KeyFunc) policy.Policy {
	if keyFn == nil {
		keyFn = Global
	}
	return policy.NewPolicy("distributed_ratelimit", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		key := keyFn(evt)
		ok, err := store.Allow(ctx, key, limit, 1)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !ok {
			return nil, &ThrottledError{Key: key}
		}
		return next(ctx, evt)
	})
}

// redisTokenBucketScript refills and takes tokens atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = now (unix seconds, microsecond precision)
// ARGV[5] = idle expiry in seconds
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

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
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return allowed
`)

// RedisLimiterStore keeps token buckets in Redis.
type RedisLimiterStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLimiterStore creates a store on client. Bucket keys are
// "eventplane:limiter:<key>" and expire after a minute of inactivity.
func NewRedisLimiterStore(client redis.UniversalClient) *RedisLimiterStore {
	return &RedisLimiterStore{
		client: client,
		prefix: "eventplane:limiter:",
		ttl:    time.Minute,
	}
}

// Allow implements LimiterStore.
func (s *RedisLimiterStore) Allow(ctx context.Context, key string, limit Limit, cost int) (bool, error) {
	perSecond := limit.PerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	allowed, err := redisTokenBucketScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		perSecond, limit.Burst, cost, now, int(s.ttl.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return allowed == 1, nil
}

// MemoryLimiterStore keeps token buckets in process.
type MemoryLimiterStore struct {
	limiters *keyedLimiters
}

// NewMemoryLimiterStore creates an empty in-process store.
func NewMemoryLimiterStore(opts ...LimiterOption) *MemoryLimiterStore {
	return &MemoryLimiterStore{limiters: newKeyedLimiters(opts...)}
}

// Allow implements LimiterStore. The limit of the first call for a key
// sizes its bucket until the bucket refills and is dropped.
func (s *MemoryLimiterStore) Allow(_ context.Context, key string, limit Limit, cost int) (bool, error) {
	return s.limiters.allow(key, rate.Limit(limit.PerSecond), limit.Burst, cost), nil
}

// Len returns the number of keys currently tracked.
func (s *MemoryLimiterStore) Len() int {
	return s.limiters.len()
}
