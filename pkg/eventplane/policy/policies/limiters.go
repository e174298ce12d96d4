package policies

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxLimiterKeys bounds the per-key limiters held in process.
	DefaultMaxLimiterKeys = 10000

	// limiterSweepInterval is how often refilled buckets are dropped.
	limiterSweepInterval = time.Minute
)

// LimiterOption configures the in-process limiters of RateLimit and
// MemoryLimiterStore.
type LimiterOption func(*keyedLimiters)

// WithMaxKeys bounds the number of keys tracked at once. When the bound is
// reached refilled buckets are dropped first, then the least recently used.
func WithMaxKeys(n int) LimiterOption {
	return func(k *keyedLimiters) {
		if n > 0 {
			k.maxKeys = n
		}
	}
}

// visitor is one key's bucket and when it was last used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiters holds a token bucket per key. A bucket that has refilled to
// its burst is indistinguishable from a new one, so it is dropped on sweep.
type keyedLimiters struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	maxKeys   int
	lastSweep time.Time
	now       func() time.Time
}

func newKeyedLimiters(opts ...LimiterOption) *keyedLimiters {
	k := &keyedLimiters{
		visitors: make(map[string]*visitor),
		maxKeys:  DefaultMaxLimiterKeys,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	k.lastSweep = k.now()
	return k
}

// allow takes cost tokens from key's bucket, creating it with limit and
// burst on first use.
func (k *keyedLimiters) allow(key string, limit rate.Limit, burst, cost int) bool {
	if limit == rate.Inf {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) >= limiterSweepInterval {
		k.sweep(now)
	}

	v, ok := k.visitors[key]
	if !ok {
		if len(k.visitors) >= k.maxKeys {
			k.sweep(now)
			if len(k.visitors) >= k.maxKeys {
				k.evictOldest()
			}
		}
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		k.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, cost)
}

// sweep drops buckets that have refilled. Callers hold mu.
func (k *keyedLimiters) sweep(now time.Time) {
	k.lastSweep = now
	for key, v := range k.visitors {
		if v.limiter.TokensAt(now) >= float64(v.limiter.Burst()) {
			delete(k.visitors, key)
		}
	}
}

// evictOldest drops the least recently used bucket. Callers hold mu.
func (k *keyedLimiters) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, v := range k.visitors {
		if oldestKey == "" || v.lastSeen.Before(oldest) {
			oldestKey, oldest = key, v.lastSeen
		}
	}
	delete(k.visitors, oldestKey)
}

func (k *keyedLimiters) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.visitors)
}
