// Webhook HTTP handlers.
//
// This file exposes the CTFd first-blood webhook:
//   - GET  /api/webhook/firstblood?token=<t>  (endpoint validation handshake)
//   - POST /api/webhook/firstblood            (signed event delivery)
//
// Configuration gates run in the router before these handlers, so a missing
// secret never reaches signature verification.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/http/middleware"
	"github.com/issessions/quest-board-gateway/internal/observability"
	"github.com/issessions/quest-board-gateway/internal/services"
	"github.com/issessions/quest-board-gateway/internal/webhook"
)

// HandshakeResponse answers CTFd's webhook validation.
type HandshakeResponse struct {
	Response string `json:"response" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// WebhookHandshake godoc
// @ID          webhookHandshake
// @Summary     Webhook endpoint validation
// @Description Returns the hex HMAC-SHA256 of token under the webhook secret.
// @Tags        Webhook
// @Produce     json
// @Param       token  query  string  true  "Challenge token sent by CTFd"
// @Success     200  {object}  handlers.HandshakeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing token parameter"
// @Failure     500  {object}  handlers.ErrorResponse  "WEBHOOK_SECRET is not configured"
// @Router      /api/webhook/firstblood [get]
func (h *Handlers) WebhookHandshake(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgMissingToken)
		return
	}
	ok(c, http.StatusOK, HandshakeResponse{Response: webhook.Handshake(h.opt.WebhookSecret, token)})
}

// FirstBlood godoc
// @ID          firstBlood
// @Summary     Receive a first-blood event
// @Description Verifies the signed delivery, enriches it from the CTFd API and posts one Discord announcement. Repeated deliveries of an announced submission are acknowledged with duplicate=true.
// @Tags        Webhook
// @Accept      json
// @Produce     json
// @Param       CTFd-Webhook-Signature  header  string  true  "t=<unix>,v1=<hex hmac of 't.body'>"
// @Param       body  body  domain.FirstBloodEvent  true  "CTFd submission event"
// @Success     200  {object}  domain.FirstBloodResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid signature"
// @Failure     413  {object}  handlers.ErrorResponse  "Payload too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Configuration missing"
// @Failure     502  {object}  handlers.ErrorResponse  "Failed to fetch submission"
// @Router      /api/webhook/firstblood [post]
func (h *Handlers) FirstBlood(c *gin.Context) {
	max := h.opt.MaxWebhookBody
	if max <= 0 {
		max = webhook.DefaultMaxBody
	}

	// Size is checked before the signature so an oversized body is never
	// hashed.
	body, err := webhook.ReadBody(c.Request.Body, c.Request.ContentLength, max)
	if err != nil {
		if errors.Is(err, webhook.ErrBodyTooLarge) {
			observability.WebhookEvent("too_large")
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, msgPayloadTooLarge)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgFailedToReadBody)
		return
	}

	if err := h.verifier.Verify(c.GetHeader(webhook.SignatureHeader), body); err != nil {
		observability.WebhookEvent("bad_signature")
		middleware.LoggerFrom(c).Warn().
			Str("event", "webhook_signature_rejected").
			Err(err).
			Msg("webhook signature rejected")
		msg := msgInvalidSignature
		if errors.Is(err, webhook.ErrMissingSignature) {
			msg = msgMissingSignature
		}
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, msg)
		return
	}

	ev, err := services.ParseEvent(body)
	if err != nil {
		observability.WebhookEvent("invalid_payload")
		failWith(c, err)
		return
	}

	res, err := h.firstBlood.Announce(c.Request.Context(), ev)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
