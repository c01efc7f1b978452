package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures a rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
}

// Decision is the outcome of a single Limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// entry tracks request counts across two adjacent windows for the sliding
// window algorithm.
type entry struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

// SlidingWindow is an in-process Limiter. Limits are per replica.
type SlidingWindow struct {
	max     int
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Limiter = (*SlidingWindow)(nil)

// NewSlidingWindow creates an in-memory sliding window limiter.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		max:     limit,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Allow implements Limiter.
func (rl *SlidingWindow) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		e = &entry{currStart: now}
		rl.entries[key] = e
	}

	if now.Sub(e.currStart) >= rl.window {
		e.prevCount = e.currCount
		e.prevStart = e.currStart
		e.currCount = 0
		e.currStart = now.Truncate(rl.window)
		if now.Sub(e.prevStart) >= 2*rl.window {
			e.prevCount = 0
		}
	}

	// Weight the previous window by its overlap with the sliding one.
	elapsed := now.Sub(e.currStart)
	overlap := max(1.0-elapsed.Seconds()/rl.window.Seconds(), 0)
	effective := e.prevCount*overlap + e.currCount
	d := Decision{ResetAt: e.currStart.Add(rl.window)}

	if effective >= float64(rl.max) {
		return d, nil
	}

	e.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(rl.max)-effective-1), 0)
	return d, nil
}

// Cleanup removes entries whose windows have fully expired.
func (rl *SlidingWindow) Cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, e := range rl.entries {
		if now.Sub(e.currStart) >= 2*rl.window {
			delete(rl.entries, key)
		}
	}
}

// RunCleanup evicts expired entries every two windows until ctx is done.
func (rl *SlidingWindow) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Cleanup(now)
		}
	}
}

// RateLimit returns a middleware that enforces cfg.Max requests per key
// through limiter. Rejected requests get 429 with a JSON body. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. Limiter failures let the request through.
func RateLimit(limiter Limiter, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			now := time.Now()

			d, err := limiter.Allow(ctx, keyFunc(r), now)
			if err != nil {
				zctx.From(ctx).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(d.ResetAt.Sub(now), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str("rate_limited") })
		e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(e.Bytes())
}

// ClientIP extracts the client IP from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
