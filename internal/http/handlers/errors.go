// Package handlers defines the HTTP-layer error codes used across the gateway.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on message text. Middleware gates emit the same codes for the
// failures they own (method_not_allowed, config_missing, unauthorized,
// forbidden, too_many_requests).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeEndpointNotAllowed = "endpoint_not_allowed"
	ErrCodeUpstream           = "upstream_unavailable"
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeInvalidSignature   = "invalid_signature"
	ErrCodeInvalidPayload     = "invalid_payload"
)

// Public messages for service failures.
const (
	msgEndpointNotAllowed  = "Endpoint not allowed"
	msgUpstreamUnavailable = "Failed to reach CTFd API"
	msgSubmissionFetch     = "Failed to fetch submission"
	msgMissingSubmissionID = "Missing submission id"
	msgInvalidPayload      = "Invalid JSON payload"
	msgInternal            = "Internal server error"
	msgPayloadTooLarge     = "Payload too large"
	msgMissingSignature    = "Missing signature"
	msgInvalidSignature    = "Invalid signature"
	msgMissingToken        = "Missing token parameter"
	msgFailedToReadBody    = "Failed to read request body"
)

// serviceError maps a service sentinel to its HTTP status, code and message.
// Unknown errors become a generic 500.
func serviceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrEndpointNotAllowed):
		return http.StatusForbidden, ErrCodeEndpointNotAllowed, msgEndpointNotAllowed
	case errors.Is(err, services.ErrUpstreamUnavailable):
		return http.StatusBadGateway, ErrCodeUpstream, msgUpstreamUnavailable
	case errors.Is(err, services.ErrSubmissionUnavailable):
		return http.StatusBadGateway, ErrCodeUpstream, msgSubmissionFetch
	case errors.Is(err, services.ErrMissingSubmissionID):
		return http.StatusBadRequest, ErrCodeInvalidPayload, msgMissingSubmissionID
	case errors.Is(err, services.ErrInvalidPayload):
		return http.StatusBadRequest, ErrCodeInvalidPayload, msgInvalidPayload
	default:
		return http.StatusInternalServerError, ErrCodeInternal, msgInternal
	}
}

// failWith writes the envelope for a service error. The error itself is
// attached to the Gin context for the access log, never to the response.
func failWith(c *gin.Context, err error) {
	status, code, msg := serviceError(err)
	_ = c.Error(err)
	fail(c, status, code, msg)
}
