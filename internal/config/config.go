// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes gateway settings such
// as server timeouts, logging, upstream CTFd access, webhook secrets, the host
// and origin allowlists, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/issessions/quest-board-gateway/internal/sysutil"
)

// Environment variable names that are required at request time. They are
// exported so handlers can name the missing variable in their 500 responses.
const (
	EnvCTFdAPIToken    = "CTFD_API_TOKEN"
	EnvAPIProxySecret  = "API_PROXY_SECRET"
	EnvWebhookSecret   = "WEBHOOK_SECRET"
	EnvWebhookURL      = "WEBHOOK_URL"
	allowlistRegexTag  = "re:"
	defaultCTFdBaseURL = "https://issessionsctf.ctfd.io"
)

// Default allowlists. Entries prefixed with "re:" are regular expressions,
// everything else is matched literally.
var (
	DefaultAllowedHosts = []string{
		"iss-ctfd-live-scoreboard.vercel.app",
		`re:^iss-ctfd-live-scoreboard-[a-z0-9-]+\.vercel\.app$`,
		"localhost:8000",
		"localhost:5173",
		"127.0.0.1:8000",
	}
	DefaultAllowedOrigins = []string{
		"https://iss-ctfd-live-scoreboard.vercel.app",
		`re:^https://iss-ctfd-live-scoreboard-[a-z0-9-]+\.vercel\.app$`,
		"http://localhost:8000",
	}
)

// CTFdConfig describes how to reach the upstream CTF platform.
type CTFdConfig struct {
	BaseURL  string        // CTFD_BASE_URL
	APIToken string        // CTFD_API_TOKEN (may be empty; enforced per request)
	Timeout  time.Duration // CTFD_TIMEOUT
}

// WebhookConfig holds the first-blood webhook settings.
type WebhookConfig struct {
	Secret     string        // WEBHOOK_SECRET
	DiscordURL string        // WEBHOOK_URL
	Timeout    time.Duration // WEBHOOK_TIMEOUT
}

// ProxyConfig holds the proxy entry point gates.
type ProxyConfig struct {
	APIKey         string   // API_PROXY_SECRET
	AllowedHosts   []string // ALLOWED_HOSTS
	AllowedOrigins []string // ALLOWED_ORIGINS
}

// RateConfig configures the per-client token bucket.
type RateConfig struct {
	Max     int           // RATE_MAX, bucket capacity
	Window  time.Duration // RATE_WINDOW, time to refill a full bucket
	Cleanup time.Duration // RATE_CLEANUP, minimum interval between sweeps
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the gateway.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool

	// Upstream + webhook
	CTFd    CTFdConfig
	Webhook WebhookConfig
	Proxy   ProxyConfig
	Rate    RateConfig

	// Announcement store
	DBPath      string
	AnnounceTTL time.Duration

	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
//
// Secrets are optional here. Their absence is reported per request with a
// 500 naming the variable, so a misconfigured deployment fails loudly on use
// instead of refusing to boot behind a health check.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		CTFd: CTFdConfig{
			BaseURL:  strings.TrimRight(strings.TrimSpace(getenv("CTFD_BASE_URL", defaultCTFdBaseURL)), "/"),
			APIToken: strings.TrimSpace(os.Getenv(EnvCTFdAPIToken)),
			Timeout:  getdur("CTFD_TIMEOUT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:     os.Getenv(EnvWebhookSecret),
			DiscordURL: strings.TrimSpace(os.Getenv(EnvWebhookURL)),
			Timeout:    getdur("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Proxy: ProxyConfig{
			APIKey:         os.Getenv(EnvAPIProxySecret),
			AllowedHosts:   getlist("ALLOWED_HOSTS", DefaultAllowedHosts),
			AllowedOrigins: getlist("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		},
		Rate: RateConfig{
			Max:     getint("RATE_MAX", 60),
			Window:  getdur("RATE_WINDOW", time.Minute),
			Cleanup: getdur("RATE_CLEANUP", 5*time.Minute),
		},

		DBPath:      getenv("DB_PATH", "file:quest-board?mode=memory&cache=shared"),
		AnnounceTTL: getdur("ANNOUNCE_TTL", 24*time.Hour),

		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "quest-board-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if u, err := url.Parse(cfg.CTFd.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, errors.New("CTFD_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.CTFd.Timeout <= 0 || cfg.Webhook.Timeout <= 0 {
		return cfg, errors.New("CTFD_TIMEOUT and WEBHOOK_TIMEOUT must be > 0")
	}
	if cfg.Webhook.DiscordURL != "" {
		if u, err := url.Parse(cfg.Webhook.DiscordURL); err != nil || u.Scheme != "https" && u.Scheme != "http" {
			return cfg, errors.New("WEBHOOK_URL must be an absolute http(s) URL")
		}
	}
	if err := validateList("ALLOWED_HOSTS", cfg.Proxy.AllowedHosts); err != nil {
		return cfg, err
	}
	if err := validateList("ALLOWED_ORIGINS", cfg.Proxy.AllowedOrigins); err != nil {
		return cfg, err
	}
	if cfg.Rate.Max < 1 {
		return cfg, errors.New("RATE_MAX must be >= 1")
	}
	if cfg.Rate.Window <= 0 || cfg.Rate.Cleanup <= 0 {
		return cfg, errors.New("RATE_WINDOW and RATE_CLEANUP must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.AnnounceTTL <= 0 {
		return cfg, errors.New("ANNOUNCE_TTL must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// IsRegexEntry reports whether an allowlist entry is a regular expression and
// returns the expression without its tag.
func IsRegexEntry(entry string) (string, bool) {
	if strings.HasPrefix(entry, allowlistRegexTag) {
		return strings.TrimPrefix(entry, allowlistRegexTag), true
	}
	return entry, false
}

func validateList(name string, entries []string) error {
	if len(entries) == 0 {
		return fmt.Errorf("%s must list at least one entry", name)
	}
	for _, e := range entries {
		if expr, ok := IsRegexEntry(e); ok {
			if _, err := regexp.Compile(expr); err != nil {
				return fmt.Errorf("%s: invalid pattern %q: %w", name, expr, err)
			}
		}
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	if sysutil.IsTruthy(v) {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getlist reads a CSV list, falling back to a copy of def when unset or empty.
func getlist(k string, def []string) []string {
	if out := splitCSV(os.Getenv(k)); len(out) > 0 {
		return out
	}
	return append([]string(nil), def...)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
