package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/gateway"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

// Header names read by the gates.
const (
	APIKeyHeader        = "X-API-Key"
	ForwardedHostHeader = "X-Forwarded-Host"
)

// MethodGate rejects any method not in allowed with 405.
func MethodGate(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, m := range allowed {
		set[strings.ToUpper(m)] = struct{}{}
	}
	allow := strings.Join(allowed, ", ")
	return func(c *gin.Context) {
		if _, ok := set[c.Request.Method]; ok {
			c.Next()
			return
		}
		observability.Denied("method")
		c.Header("Allow", allow)
		abortJSON(c, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// Setting names an environment variable whose value must be non-empty for a
// route to serve.
type Setting struct {
	Name  string
	Value string
}

// RequireConfig fails closed with a 500 naming the first missing setting.
// Settings are checked in order.
func RequireConfig(settings ...Setting) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, s := range settings {
			if strings.TrimSpace(s.Value) != "" {
				continue
			}
			observability.Denied("config_missing")
			LoggerFrom(c).Error().Str("setting", s.Name).Msg("required setting is not configured")
			abortJSON(c, http.StatusInternalServerError, "config_missing", s.Name+" is not configured")
			return
		}
		c.Next()
	}
}

// APIKey requires the X-API-Key header to equal secret. Both sides are hashed
// first so the comparison is constant time regardless of length.
func APIKey(secret string) gin.HandlerFunc {
	want := sha256.Sum256([]byte(secret))
	return func(c *gin.Context) {
		got := sha256.Sum256([]byte(c.GetHeader(APIKeyHeader)))
		if secret != "" && subtle.ConstantTimeCompare(got[:], want[:]) == 1 {
			c.Next()
			return
		}
		observability.Denied("api_key")
		abortJSON(c, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	}
}

// Trust admits requests whose forwarded host, Host or Origin satisfies policy.
func Trust(policy gateway.TrustPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy.IsRequestTrusted(c.GetHeader(ForwardedHostHeader), c.Request.Host, c.GetHeader("Origin")) {
			c.Next()
			return
		}
		observability.Denied("untrusted")
		LoggerFrom(c).Warn().
			Str("forwarded_host", c.GetHeader(ForwardedHostHeader)).
			Str("host", c.Request.Host).
			Str("origin", c.GetHeader("Origin")).
			Msg("untrusted request")
		abortJSON(c, http.StatusForbidden, "forbidden", "Forbidden")
	}
}
