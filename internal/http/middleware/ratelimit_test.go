package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestClientID_PreferenceOrder(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"xff first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1", "X-Real-IP": "198.51.100.2"}, "203.0.113.9"},
		{"xff single", map[string]string{"X-Forwarded-For": " 203.0.113.7 "}, "203.0.113.7"},
		{"real ip fallback", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"empty xff falls through", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.3"}, "198.51.100.3"},
		{"unknown", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:1234" // never used
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientID(req); got != tt.want {
				t.Fatalf("ClientID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRateLimiter_Coercion(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, nil)
	if rl.max != 1 || rl.window != time.Minute || rl.cleanup != time.Minute || rl.keyFn == nil {
		t.Fatalf("coercion failed: %+v", rl)
	}
	if rl.RetryAfter() != "60" {
		t.Fatalf("RetryAfter = %q", rl.RetryAfter())
	}
}

func TestRateLimiter_BurstThenRefillFullWindow(t *testing.T) {
	const max = 10
	rl := NewRateLimiter(max, time.Minute, time.Hour, nil)
	start := time.Now()

	for i := range max {
		if !rl.allowAt("ip", start) {
			t.Fatalf("request %d within capacity was throttled", i+1)
		}
	}
	if rl.allowAt("ip", start) {
		t.Fatalf("request %d should be throttled", max+1)
	}
	// A rejected check consumes nothing.
	if got := rl.tokensAt("ip", start); got != 0 {
		t.Fatalf("tokens after rejection = %d, want 0", got)
	}

	later := start.Add(time.Minute + time.Millisecond)
	for i := range max {
		if !rl.allowAt("ip", later) {
			t.Fatalf("after a full window, request %d was throttled", i+1)
		}
	}
	if rl.allowAt("ip", later) {
		t.Fatalf("capacity must not exceed max after refill")
	}
}

func TestRateLimiter_RefillIsProportional(t *testing.T) {
	const max = 10
	rl := NewRateLimiter(max, time.Minute, time.Hour, nil)
	start := time.Now()
	for range max {
		rl.allowAt("ip", start)
	}

	half := start.Add(30 * time.Second)
	allowed := 0
	for rl.allowAt("ip", half) {
		allowed++
		if allowed > max {
			break
		}
	}
	if allowed < max/2-1 || allowed > max/2 {
		t.Fatalf("half a window refilled %d tokens, want about %d", allowed, max/2)
	}
}

func TestRateLimiter_TokensNeverExceedMax(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, time.Hour, nil)
	start := time.Now()
	rl.allowAt("k", start)
	if got := rl.tokensAt("k", start.Add(24*time.Hour)); got != 5 {
		t.Fatalf("tokens after long idle = %d, want 5", got)
	}
	if got := rl.tokensAt("absent", start); got != 5 {
		t.Fatalf("new client should start full, got %d", got)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, time.Hour, nil)
	now := time.Now()
	if !rl.allowAt("a", now) || rl.allowAt("a", now) {
		t.Fatalf("key a should allow exactly one")
	}
	if !rl.allowAt("b", now) {
		t.Fatalf("key b must have its own bucket")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, 5*time.Minute, nil)
	start := rl.lastSweep

	rl.allowAt("old", start)
	rl.allowAt("fresh", start.Add(4*time.Minute))

	// Not yet due: nothing is evicted even though "old" is idle > 2×window.
	rl.allowAt("other", start.Add(4*time.Minute+30*time.Second))
	if rl.Len() != 3 {
		t.Fatalf("sweep ran early, len=%d", rl.Len())
	}

	// Due: "old" (idle 5m > 2m) goes, "fresh" (idle 1m) stays.
	rl.allowAt("trigger", start.Add(5*time.Minute))
	rl.mu.Lock()
	_, hasOld := rl.visitors["old"]
	_, hasFresh := rl.visitors["fresh"]
	rl.mu.Unlock()
	if hasOld {
		t.Fatalf("idle bucket should be swept")
	}
	if !hasFresh {
		t.Fatalf("recent bucket should survive")
	}
	if !rl.lastSweep.Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("lastSweep not advanced")
	}
}

func TestRateLimiter_Handler_Allow_Deny(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1, time.Minute, time.Hour, KeyByClientIP())

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	send := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Forwarded-For", ip)
		r.ServeHTTP(w, req)
		return w
	}

	if w := send("203.0.113.1"); w.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w.Code)
	}
	w := send("203.0.113.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "Too many requests" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected JSON body: %v", body)
	}

	if w := send("203.0.113.2"); w.Code != http.StatusOK {
		t.Fatalf("different client should be allowed, got %d", w.Code)
	}
}
