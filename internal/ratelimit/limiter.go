package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Config controls the per-sender token bucket
type Config struct {
	Enabled           bool
	MessagesPerMinute int
	MaxBuckets        int
	IdleTTL           time.Duration
}

// Decision is the outcome of one admission attempt
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or rejects sends per user without blocking.
// Buckets live in a bounded LRU whose entries expire after IdleTTL without use.
type Limiter struct {
	enabled bool
	limit   rate.Limit
	burst   int
	now     func() time.Time

	mu      sync.Mutex
	buckets *expirable.LRU[uint64, *rate.Limiter]
}

// minIdleTTL is one full refill window: an evicted bucket must already be full again,
// otherwise eviction would reset a drained bucket
const minIdleTTL = time.Minute

// New creates a limiter. A disabled limiter admits everything.
func New(cfg Config) *Limiter {
	return newLimiter(cfg, minIdleTTL)
}

func newLimiter(cfg Config, ttlFloor time.Duration) *Limiter {
	l := &Limiter{enabled: cfg.Enabled && cfg.MessagesPerMinute > 0, now: time.Now}
	if !l.enabled {
		return l
	}

	l.burst = cfg.MessagesPerMinute
	l.limit = rate.Limit(float64(cfg.MessagesPerMinute) / time.Minute.Seconds())

	size := cfg.MaxBuckets
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.IdleTTL
	if ttl < ttlFloor {
		ttl = ttlFloor
	}
	l.buckets = expirable.NewLRU[uint64, *rate.Limiter](size, nil, ttl)
	return l
}

// Enabled reports whether admission control is active
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Acquire takes one token for userID. A rejected attempt consumes nothing.
func (l *Limiter) Acquire(userID uint64) Decision {
	if !l.enabled {
		return Decision{Allowed: true}
	}

	now := l.now()
	bucket := l.bucket(userID)
	if bucket.AllowN(now, 1) {
		return Decision{Allowed: true}
	}

	missing := 1 - bucket.TokensAt(now)
	wait := time.Duration(missing / float64(l.limit) * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: wait}
}

// Len returns the number of live buckets
func (l *Limiter) Len() int {
	if !l.enabled {
		return 0
	}
	return l.buckets.Len()
}

// bucket returns the user's limiter, creating it on first use.
// Re-adding refreshes the entry's expiry so only idle buckets are evicted.
func (l *Limiter) bucket(userID uint64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(userID)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Add(userID, b)
	return b
}
