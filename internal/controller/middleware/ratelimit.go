package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"planetoidgen/pkg/api"
)

// RateLimiter keeps one token bucket per key. Idle buckets are replaced after
// the TTL so the map does not grow without bound.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*cachedLimiter
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

type Option func(*RateLimiter)

// WithTTL sets how long an idle bucket is kept.
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// NewRateLimiter allows limit requests per second per key with the given
// burst. A limit of 0 means unlimited.
func NewRateLimiter(limit float64, burst int, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		limit:    rate.Limit(limit),
		burst:    max(burst, 1),
		ttl:      5 * time.Minute,
		now:      time.Now,
		limiters: make(map[string]*cachedLimiter),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow reports whether a request for key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	cached, ok := rl.limiters[key]
	if !ok || now.After(cached.expiresAt) {
		cached = &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cached
	}
	cached.expiresAt = now.Add(rl.ttl)
	rl.mu.Unlock()

	return cached.limiter.AllowN(now, 1)
}

// Middleware limits requests per connection id, falling back to the client IP.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(api.ConnectionHeader)); id != "" {
		return "conn:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
