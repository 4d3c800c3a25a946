// Package handlers provides HTTP handler implementations for the gateway.
//
// This file defines the response helpers shared by every endpoint. Errors are
// written as a single envelope so scoreboard clients and the CTFd webhook
// sender can branch on a stable code, and operators can correlate a failure
// with its log line through the request id.
//
// Conventions:
//   - Every error response is an ErrorResponse with a stable `code`.
//   - `fail()` centralizes logging: 5xx responses are logged with the
//     request-scoped logger, 4xx are left to the access log.
//   - Messages are safe for display. Internal error text is never echoed.
//
// Example error response:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "error": "Endpoint not allowed",
//	  "code": "endpoint_not_allowed",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints. Middleware
// gates write the same shape.
type ErrorResponse struct {
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"Endpoint not allowed"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"endpoint_not_allowed"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with an ErrorResponse. Server errors (>=500) are
// logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.RequestIDFrom(c),
	})
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
