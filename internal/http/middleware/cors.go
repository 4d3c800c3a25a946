package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/gateway"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

const (
	corsAllowMethods = "GET, OPTIONS"
	corsAllowHeaders = "Content-Type, X-API-Key"
	corsMaxAge       = 24 * time.Hour
)

// CORSHeaders stamps the CORS headers on every proxy response, whatever the
// gates decide later. Access-Control-Allow-Origin echoes the Origin only when
// it is allowlisted and is otherwise present but empty.
func CORSHeaders(policy gateway.TrustPolicy) gin.HandlerFunc {
	maxAge := strconv.Itoa(int(corsMaxAge.Seconds()))
	return func(c *gin.Context) {
		h := c.Writer.Header()
		// gin's c.Header drops empty values, so write the map directly.
		h.Set("Access-Control-Allow-Origin", policy.AllowOriginHeader(c.GetHeader("Origin")))
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", maxAge)
		h.Add("Vary", "Origin")
		c.Next()
	}
}

// Preflight answers OPTIONS requests against the Origin allowlist alone:
// 204 with CORS headers when the Origin is allowed, 403 with no body
// otherwise. It is terminal; nothing after it in the chain runs.
func Preflight(policy gateway.TrustPolicy) gin.HandlerFunc {
	applyCORS := cors.New(cors.Config{
		AllowOriginFunc: policy.OriginAllowed,
		AllowMethods:    []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "X-API-Key"},
		ExposeHeaders:   []string{requestIDHeader, "Retry-After"},
		MaxAge:          corsMaxAge,
	})
	return func(c *gin.Context) {
		applyCORS(c)
		if c.IsAborted() {
			if c.Writer.Status() == http.StatusForbidden {
				observability.Denied("preflight_origin")
			}
			return
		}
		// The cors handler passes requests it does not consider cross-origin
		// (no Origin, or an Origin naming this host); decide those here.
		if !policy.OriginAllowed(c.GetHeader("Origin")) {
			observability.Denied("preflight_origin")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
