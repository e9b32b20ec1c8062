package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the full burst
	Reset()
}

// TokenBucket paces requests at a sustained rate with a burst allowance
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	rps     float64
	burst   int
}

// NewTokenBucket creates a limiter allowing requestsPerSecond with burst
func NewTokenBucket(requestsPerSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		rps:     requestsPerSecond,
		burst:   burst,
	}
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(rate.Limit(tb.rps), tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// New returns a TokenBucket, or Unlimited when requestsPerSecond is not positive
func New(requestsPerSecond float64, burst int) Limiter {
	if requestsPerSecond <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(requestsPerSecond, burst)
}

// KeyedLimiter keeps an independent token bucket per key, such as a client IP.
// Buckets idle for longer than the idle timeout are dropped.
type KeyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedEntry
	rate      rate.Limit
	burst     int
	idle      time.Duration
	cleanupAt time.Time
	now       func() time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a per-key limiter
func NewKeyedLimiter(requestsPerSecond float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters:  make(map[string]*keyedEntry),
		rate:      rate.Limit(requestsPerSecond),
		burst:     burst,
		idle:      10 * time.Minute,
		cleanupAt: time.Now().Add(5 * time.Minute),
		now:       time.Now,
	}
}

// Allow reports whether key may make another request
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(5 * time.Minute)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// must be called with mu held
func (l *KeyedLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.idle)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Len returns the number of tracked keys
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
