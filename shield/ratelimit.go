package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// gcInterval bounds how often the bucket map gets swept for expired
// entries.
const gcInterval = 5 * time.Minute

// RateLimiter enforces a fixed per-IP request budget over a sliding
// window. Expired buckets are swept opportunistically on the request
// path, so the map stays bounded without a lifecycle hook.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	buckets     sync.Map
	exclude     []string // path prefixes excluded from rate limiting
	lastGC      atomic.Int64
}

// NewRateLimiter creates a limiter allowing maxRequests per window per
// client IP. Requests under any of the excludePrefixes always pass.
func NewRateLimiter(maxRequests int, window time.Duration, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		exclude:     excludePrefixes,
	}
}

// maybeGC sweeps expired buckets at most once per gcInterval. The CAS
// elects a single sweeping request; everyone else moves on.
func (rl *RateLimiter) maybeGC(now time.Time) {
	last := rl.lastGC.Load()
	if now.UnixNano()-last < int64(gcInterval) {
		return
	}
	if !rl.lastGC.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	now := time.Now()
	rl.maybeGC(now)

	val, loaded := rl.buckets.LoadOrStore(ip, &bucket{
		count:   1,
		resetAt: now.Add(rl.window),
	})
	if !loaded {
		return true
	}

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(rl.window)
		return true
	}
	b.count++
	return b.count <= rl.maxRequests
}

// Middleware enforces the limit with a 429 JSON response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)

		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
