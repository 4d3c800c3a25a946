package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// PingResponse is the /api/test body.
type PingResponse struct {
	Message   string `json:"message" example:"API is working!"`
	Timestamp int64  `json:"timestamp" example:"1767225600000"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ping godoc
// @ID          ping
// @Summary     Connectivity check
// @Description Returns a fixed message and the server time in Unix milliseconds.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.PingResponse
// @Router      /api/test [get]
func (h *Handlers) Ping(c *gin.Context) {
	now := time.Now
	if h.opt.Now != nil {
		now = h.opt.Now
	}
	ok(c, http.StatusOK, PingResponse{Message: "API is working!", Timestamp: now().UnixMilli()})
}
