// Package httpapi wires the HTTP transport (Gin) to the gateway services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// CORS, security headers, and the proxy gate chain.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Fail closed: every proxy request passes every gate, in a fixed order
package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/issessions/quest-board-gateway/internal/allowlist"
	"github.com/issessions/quest-board-gateway/internal/config"
	"github.com/issessions/quest-board-gateway/internal/ctfd"
	"github.com/issessions/quest-board-gateway/internal/discord"
	_ "github.com/issessions/quest-board-gateway/internal/docs" // swagger spec registration
	"github.com/issessions/quest-board-gateway/internal/gateway"
	"github.com/issessions/quest-board-gateway/internal/http/handlers"
	"github.com/issessions/quest-board-gateway/internal/http/middleware"
	"github.com/issessions/quest-board-gateway/internal/services"
	"github.com/issessions/quest-board-gateway/internal/webhook"
)

// Route paths.
const (
	ProxyPrefix = "/api/v1"
	WebhookPath = "/api/webhook/firstblood"
	apiPrefix   = "/api/"
)

// proxyMethods are registered on the proxy route so that the method gate,
// not Gin's NoMethod fallback, answers non-GET requests with CORS headers.
// OPTIONS is registered separately for preflight.
var proxyMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodConnect, http.MethodTrace,
}

// TrustPolicy builds the host/origin policy from configured allowlists.
// Entries tagged "re:" are compiled as regular expressions.
func TrustPolicy(cfg config.ProxyConfig) (gateway.TrustPolicy, error) {
	hosts, err := allowlist.Parse(cfg.AllowedHosts, config.IsRegexEntry)
	if err != nil {
		return gateway.TrustPolicy{}, fmt.Errorf("ALLOWED_HOSTS: %w", err)
	}
	origins, err := allowlist.Parse(cfg.AllowedOrigins, config.IsRegexEntry)
	if err != nil {
		return gateway.TrustPolicy{}, fmt.Errorf("ALLOWED_ORIGINS: %w", err)
	}
	return gateway.TrustPolicy{Hosts: hosts, Origins: origins}, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: the CTFd proxy under /api/v1, the first-blood webhook, liveness,
// metrics, and optionally the Swagger UI. db backs announcement
// de-duplication and may be nil.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with secret redaction
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Security headers
//
// Proxy gate order (per route):
//
//	CORS headers → preflight (OPTIONS) → method → config → API key →
//	trust → rate limit → path (in the service) → forward
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) error {
	policy, err := TrustPolicy(cfg.Proxy)
	if err != nil {
		return err
	}

	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.DefaultRedactor()))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Dependency injection: services ← upstream clients/db
	members := gateway.NewSeenMembers()
	upstream := ctfd.NewClient(cfg.CTFd.BaseURL, cfg.CTFd.APIToken, cfg.CTFd.Timeout)
	proxySvc := &services.ProxyService{
		Filter:    gateway.NewEndpointFilter(gateway.DefaultEndpoints, members),
		Sanitizer: gateway.Sanitizer{Members: members},
		Upstream:  upstream,
	}
	firstBloodSvc := &services.FirstBloodService{
		DB:       db,
		CTFd:     upstream,
		Notifier: discord.NewNotifier(cfg.Webhook.DiscordURL, cfg.Webhook.Timeout),
		TTL:      cfg.AnnounceTTL,
	}
	h := handlers.New(proxySvc, firstBloodSvc, webhook.NewVerifier(cfg.Webhook.Secret), handlers.Options{
		WebhookSecret:  cfg.Webhook.Secret,
		MaxWebhookBody: webhook.DefaultMaxBody,
	})

	// Proxy
	limiter := middleware.NewRateLimiter(cfg.Rate.Max, cfg.Rate.Window, cfg.Rate.Cleanup, middleware.KeyByClientIP())
	gates := gin.HandlersChain{
		middleware.MethodGate(http.MethodGet),
		middleware.RequireConfig(
			middleware.Setting{Name: config.EnvCTFdAPIToken, Value: cfg.CTFd.APIToken},
			middleware.Setting{Name: config.EnvAPIProxySecret, Value: cfg.Proxy.APIKey},
		),
		middleware.APIKey(cfg.Proxy.APIKey),
		middleware.Trust(policy),
		limiter.Handler(),
	}

	proxy := r.Group(ProxyPrefix, middleware.CORSHeaders(policy))
	{
		proxy.OPTIONS("/*path", middleware.Preflight(policy))
		forward := append(append(gin.HandlersChain{}, gates...), gzip.Gzip(gzip.DefaultCompression), h.Proxy)
		for _, m := range proxyMethods {
			proxy.Handle(m, "/*path", forward...)
		}
	}

	// Webhook
	webhookSecret := middleware.Setting{Name: config.EnvWebhookSecret, Value: cfg.Webhook.Secret}
	r.GET(WebhookPath, middleware.NoStore(), middleware.RequireConfig(webhookSecret), h.WebhookHandshake)
	r.POST(WebhookPath, middleware.NoStore(), middleware.RequireConfig(
		webhookSecret,
		middleware.Setting{Name: config.EnvCTFdAPIToken, Value: cfg.CTFd.APIToken},
		middleware.Setting{Name: config.EnvWebhookURL, Value: cfg.Webhook.DiscordURL},
	), h.FirstBlood)

	// Liveness/health
	r.GET("/health", middleware.NoStore(), h.Health)
	r.GET("/api/test", middleware.NoStore(), h.Ping)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Fallbacks. Unrouted /api/ paths are proxy traffic for endpoints that do
	// not exist; they pass the same gates and are refused as not allowlisted,
	// so probing cannot tell an unknown path from a forbidden one.
	denied := append(gin.HandlersChain{
		apiOnly,
		middleware.CORSHeaders(policy),
		preflightIfOptions(middleware.Preflight(policy)),
	}, gates...)
	r.NoRoute(append(denied, h.DeniedEndpoint)...)
	r.NoMethod(onAPI(middleware.CORSHeaders(policy)), func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "Method not allowed")
	})

	return nil
}

// apiOnly answers 404 for paths outside /api/ and lets the rest continue.
func apiOnly(c *gin.Context) {
	if !strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
		return
	}
	c.Next()
}

// onAPI runs h for /api/ paths only.
func onAPI(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			h(c)
			return
		}
		c.Next()
	}
}

// preflightIfOptions runs preflight for OPTIONS and passes anything else on.
func preflightIfOptions(preflight gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			preflight(c)
			return
		}
		c.Next()
	}
}
