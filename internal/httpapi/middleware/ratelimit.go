package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// tokenBucket: simple per-client token bucket (max tokens = burst, refill rate per second).
type tokenBucket struct {
	tokens float64
	last   time.Time
}

type limiter struct {
	rate  float64 // tokens per second
	burst float64
	mu    sync.Mutex
	m     map[string]*tokenBucket
	ttl   time.Duration
	clock clockwork.Clock
}

func newLimiter(rps float64, burst int, ttl time.Duration, clock clockwork.Clock) *limiter {
	return &limiter{
		rate:  rps,
		burst: float64(burst),
		m:     make(map[string]*tokenBucket),
		ttl:   ttl,
		clock: clock,
	}
}

func (l *limiter) allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	l.evict(now)
	tb := l.m[key]
	if tb == nil {
		tb = &tokenBucket{tokens: l.burst, last: now}
		l.m[key] = tb
	}
	// refill
	elapsed := now.Sub(tb.last).Seconds()
	tb.tokens = minFloat(l.burst, tb.tokens+elapsed*l.rate)
	tb.last = now

	allowed := tb.tokens >= 1.0
	if allowed {
		tb.tokens -= 1.0
	}
	l.mu.Unlock()
	return allowed
}

// evict drops buckets idle for longer than ttl; they would be full anyway.
func (l *limiter) evict(now time.Time) {
	for k, tb := range l.m {
		if now.Sub(tb.last) > l.ttl {
			delete(l.m, k)
		}
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RateLimit returns a middleware that rate-limits submissions by client IP.
// Example: RateLimit(120, 60) => 120 req/min with burst 60
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		// disabled
		return func(next http.Handler) http.Handler { return next }
	}
	rps := float64(reqPerMin) / 60.0
	return rateLimit(newLimiter(rps, burst, 10*time.Minute, clockwork.NewRealClock()))
}

func rateLimit(l *limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			if !l.allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
