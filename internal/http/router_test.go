package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/issessions/quest-board-gateway/internal/config"
	"github.com/issessions/quest-board-gateway/internal/repo"
)

const (
	testKey    = "proxy-key"
	prodOrigin = "https://iss-ctfd-live-scoreboard.vercel.app"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeCTFd serves a team whose members are 7 and 8, and echoes every other
// path back as JSON.
func fakeCTFd(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/teams/3":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":3,"members":[7,8],"captain_id":7}}`))
		case "/api/v1/users/7":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":7,"name":"Thorin","email":"t@erebor.example"}}`))
		default:
			_, _ = fmt.Fprintf(w, `{"success":true,"path":%q,"query":%q}`, r.URL.Path, r.URL.RawQuery)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(ctfdURL string) config.Config {
	return config.Config{
		CTFd:    config.CTFdConfig{BaseURL: ctfdURL, APIToken: "ctfd-token", Timeout: 2 * time.Second},
		Webhook: config.WebhookConfig{Secret: "hook", DiscordURL: "http://127.0.0.1:1/discord", Timeout: time.Second},
		Proxy: config.ProxyConfig{
			APIKey:         testKey,
			AllowedHosts:   config.DefaultAllowedHosts,
			AllowedOrigins: config.DefaultAllowedOrigins,
		},
		Rate:        config.RateConfig{Max: 100, Window: time.Minute, Cleanup: time.Minute},
		AnnounceTTL: time.Hour,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if err := RegisterRoutes(r, newTestDB(t), cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r
}

// proxyGet builds a request that passes the key and trust gates.
func proxyGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "localhost:8000"
	req.Header.Set("X-API-Key", testKey)
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	s, _ := body["error"].(string)
	return s
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig(fakeCTFd(t).URL))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("baseline headers missing: %v", w.Header())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("GET /health Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "API is working!") {
		t.Fatalf("GET /api/test = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_inflight") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	if w = serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = serve(r, httptest.NewRequest(http.MethodPost, "/health", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if _, ok := w.Header()["Access-Control-Allow-Origin"]; ok {
		t.Fatalf("non-API 405 must not carry CORS headers")
	}
	if w = serve(r, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_SwaggerWhenEnabled(t *testing.T) {
	cfg := testConfig(fakeCTFd(t).URL)
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/webhook/firstblood") {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
}

func TestProxy_GateOrder(t *testing.T) {
	srv := fakeCTFd(t)

	t.Run("preflight allowed origin", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/scoreboard", nil)
		req.Header.Set("Origin", prodOrigin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := serve(r, req)
		if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != prodOrigin {
			t.Fatalf("got %d ACAO=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("preflight foreign origin", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/scoreboard", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := serve(r, req)
		if w.Code != http.StatusForbidden || w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("got %d ACAO=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("method before auth", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		w := serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/scoreboard", nil))
		if w.Code != http.StatusMethodNotAllowed || errorOf(t, w) != "Method not allowed" {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
		if w.Header().Get("Access-Control-Allow-Methods") != "GET, OPTIONS" {
			t.Fatalf("CORS headers missing on 405")
		}
	})

	t.Run("non-standard method carries CORS", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		for _, m := range []string{"PROPFIND", "MKCOL"} {
			req := httptest.NewRequest(m, "/api/v1/scoreboard", nil)
			req.Header.Set("Origin", prodOrigin)
			w := serve(r, req)
			if w.Code != http.StatusMethodNotAllowed || errorOf(t, w) != "Method not allowed" {
				t.Fatalf("%s: got %d %s", m, w.Code, w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != prodOrigin {
				t.Fatalf("%s: ACAO = %q, want %q", m, got, prodOrigin)
			}
		}

		req := httptest.NewRequest("PROPFIND", "/api/v1/scoreboard", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := serve(r, req)
		if got, ok := w.Header()["Access-Control-Allow-Origin"]; !ok || got[0] != "" {
			t.Fatalf("untrusted origin: ACAO = %v (present=%v)", got, ok)
		}
	})

	t.Run("config before auth", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.CTFd.APIToken = ""
		r := newRouter(t, cfg)
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/scoreboard", nil))
		if w.Code != http.StatusInternalServerError || errorOf(t, w) != "CTFD_API_TOKEN is not configured" {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("bad key", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		req := proxyGet("/api/v1/scoreboard")
		req.Header.Set("X-API-Key", "wrong")
		if w := serve(r, req); w.Code != http.StatusUnauthorized || errorOf(t, w) != "Unauthorized" {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("untrusted host", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		req := proxyGet("/api/v1/scoreboard")
		req.Host = "evil.example"
		req.Header.Set("Origin", "https://evil.example")
		w := serve(r, req)
		if w.Code != http.StatusForbidden || errorOf(t, w) != "Forbidden" {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
		if got, ok := w.Header()["Access-Control-Allow-Origin"]; !ok || got[0] != "" {
			t.Fatalf("ACAO should be present and empty, got %v", got)
		}
	})

	t.Run("trusted by origin", func(t *testing.T) {
		r := newRouter(t, testConfig(srv.URL))
		req := proxyGet("/api/v1/scoreboard")
		req.Host = "gateway.internal"
		req.Header.Set("Origin", prodOrigin)
		w := serve(r, req)
		if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != prodOrigin {
			t.Fatalf("got %d ACAO=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Rate.Max = 2
		r := newRouter(t, cfg)
		for i := range 2 {
			if w := serve(r, proxyGet("/api/v1/teams")); w.Code != http.StatusOK {
				t.Fatalf("request %d: %d", i+1, w.Code)
			}
		}
		w := serve(r, proxyGet("/api/v1/teams"))
		if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "60" {
			t.Fatalf("got %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
		}
	})
}

func TestProxy_ForwardsAndFilters(t *testing.T) {
	r := newRouter(t, testConfig(fakeCTFd(t).URL))

	w := serve(r, proxyGet("/api/v1/scoreboard/top/10?bracket=open"))
	if w.Code != http.StatusOK {
		t.Fatalf("scoreboard: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "s-maxage=30, stale-while-revalidate=60" {
		t.Fatalf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
	if !strings.Contains(w.Body.String(), `"query":"bracket=open"`) {
		t.Fatalf("query not forwarded: %s", w.Body.String())
	}

	for _, path := range []string{"/api/v1/teams/42/extra", "/api/v1/configs", "/api/v1/users/7", "/api/unknown"} {
		w := serve(r, proxyGet(path))
		if w.Code != http.StatusForbidden || errorOf(t, w) != "Endpoint not allowed" {
			t.Fatalf("%s: got %d %s", path, w.Code, w.Body.String())
		}
	}

	if w := serve(r, proxyGet("/api/v1/teams/3")); w.Code != http.StatusOK {
		t.Fatalf("team detail: %d", w.Code)
	}
	w = serve(r, proxyGet("/api/v1/users/7"))
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "email") {
		t.Fatalf("user 7 after team: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, proxyGet("/api/v1/users/9")); w.Code != http.StatusForbidden {
		t.Fatalf("user 9 never listed: %d", w.Code)
	}
}

func TestProxy_UpstreamDown(t *testing.T) {
	srv := fakeCTFd(t)
	url := srv.URL
	srv.Close()

	r := newRouter(t, testConfig(url))
	w := serve(r, proxyGet("/api/v1/teams"))
	if w.Code != http.StatusBadGateway || errorOf(t, w) != "Failed to reach CTFd API" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestProxy_Gzip(t *testing.T) {
	r := newRouter(t, testConfig(fakeCTFd(t).URL))
	req := proxyGet("/api/v1/teams")
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(r, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("got %d Content-Encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
}

func TestWebhook_ConfigAndMethodGates(t *testing.T) {
	srv := fakeCTFd(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		method string
		status int
		msg    string
	}{
		{"handshake without secret", func(c *config.Config) { c.Webhook.Secret = "" }, http.MethodGet, http.StatusInternalServerError, "WEBHOOK_SECRET is not configured"},
		{"post without secret", func(c *config.Config) { c.Webhook.Secret = "" }, http.MethodPost, http.StatusInternalServerError, "WEBHOOK_SECRET is not configured"},
		{"post without ctfd token", func(c *config.Config) { c.CTFd.APIToken = "" }, http.MethodPost, http.StatusInternalServerError, "CTFD_API_TOKEN is not configured"},
		{"post without discord url", func(c *config.Config) { c.Webhook.DiscordURL = "" }, http.MethodPost, http.StatusInternalServerError, "WEBHOOK_URL is not configured"},
		{"unsupported method", func(*config.Config) {}, http.MethodPut, http.StatusMethodNotAllowed, "Method not allowed"},
		{"unsigned post", func(*config.Config) {}, http.MethodPost, http.StatusUnauthorized, "Missing signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(srv.URL)
			tt.mutate(&cfg)
			r := newRouter(t, cfg)
			w := serve(r, httptest.NewRequest(tt.method, "/api/webhook/firstblood?token=x", strings.NewReader(`{"id":1}`)))
			if w.Code != tt.status || errorOf(t, w) != tt.msg {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
			if tt.status != http.StatusMethodNotAllowed && w.Header().Get("Cache-Control") != "no-store" {
				t.Fatalf("webhook Cache-Control = %q", w.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestTrustPolicy_BadRegex(t *testing.T) {
	_, err := TrustPolicy(config.ProxyConfig{AllowedHosts: []string{"re:("}, AllowedOrigins: []string{"x"}})
	if err == nil || !strings.Contains(err.Error(), "ALLOWED_HOSTS") {
		t.Fatalf("expected ALLOWED_HOSTS error, got %v", err)
	}
}
