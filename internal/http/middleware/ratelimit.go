// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-client token bucket that throttles the proxy
// entry point. Each client gets a bucket of Max tokens that refills at Max per
// Window, computed lazily on access by golang.org/x/time/rate. A new client
// starts with a full bucket, so a first burst of up to Max requests is never
// throttled.
//
// Notes:
//   - Buckets are process-local. Many short-lived instances each enforce their
//     own limit; the result is best effort, not a global quota.
//   - Idle buckets are swept opportunistically: every call checks whether a
//     sweep is due, and a sweep runs at most once per Cleanup interval,
//     deleting buckets untouched for more than 2×Window.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/issessions/quest-board-gateway/internal/observability"
	"github.com/issessions/quest-board-gateway/internal/sysutil"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByClientIP returns a KeyFunc built on ClientID.
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return ClientID(c.Request) }
}

// ClientID derives the client identity in preference order: first hop of
// X-Forwarded-For, then X-Real-IP, then the literal "unknown".
func ClientID(r *http.Request) string {
	first := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	id := sysutil.FirstNonEmpty(first, r.Header.Get("X-Real-IP"), "unknown")
	return strings.TrimSpace(id)
}

// visitor holds a single bucket and the last time it was touched.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token bucket. It is safe for concurrent use.
type RateLimiter struct {
	max     int
	window  time.Duration
	cleanup time.Duration
	keyFn   KeyFunc
	now     func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter constructs a limiter granting max requests per window per
// key. Non-positive values are coerced to 1 request, 1 minute, and a cleanup
// interval equal to the window.
func NewRateLimiter(max int, window, cleanup time.Duration, keyFn KeyFunc) *RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if cleanup <= 0 {
		cleanup = window
	}
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	rl := &RateLimiter{
		max:      max,
		window:   window,
		cleanup:  cleanup,
		keyFn:    keyFn,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
	rl.lastSweep = rl.now()
	return rl
}

// Allow reports whether key may proceed, consuming one token if so. When the
// bucket is empty no token is consumed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allowAt(key, rl.now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before touching key so a stale bucket for key itself is dropped.
	if now.Sub(rl.lastSweep) >= rl.cleanup {
		idle := 2 * rl.window
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > idle {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		perSecond := float64(rl.max) / rl.window.Seconds()
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), rl.max)}
		// Start the bucket full at the caller's clock.
		v.limiter.SetLimitAt(now, rate.Limit(perSecond))
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// tokensAt reports the whole tokens available to key at now.
func (rl *RateLimiter) tokensAt(key string, now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		return rl.max
	}
	return int(math.Floor(v.limiter.TokensAt(now)))
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RetryAfter is the Retry-After value sent with 429 responses.
func (rl *RateLimiter) RetryAfter() string {
	return strconv.Itoa(int(math.Ceil(rl.window.Seconds())))
}

// Handler returns a Gin middleware that enforces the per-client limit.
//
// The middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 60
//	{ "error": "Too many requests", "code": "too_many_requests", "request_id": "<id>" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(rl.keyFn(c)) {
			c.Next()
			return
		}
		observability.Denied("rate_limited")
		c.Header("Retry-After", rl.RetryAfter())
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "Too many requests")
	}
}

// abortJSON writes the gateway error envelope from middleware, which cannot
// depend on the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"code":       code,
		"request_id": c.Writer.Header().Get(requestIDHeader),
	})
}
