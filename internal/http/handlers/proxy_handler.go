package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/issessions/quest-board-gateway/internal/gateway"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

// CacheControl lets the edge cache relayed scoreboard reads briefly.
const CacheControl = "s-maxage=30, stale-while-revalidate=60"

// Proxy godoc
// @ID          proxyCTFd
// @Summary     Relay a read-only CTFd API call
// @Description Forwards an allowlisted GET to the CTFd API with the server-side token and relays the sanitized reply. Per-user endpoints are only reachable once the user has been seen as a team member.
// @Tags        Proxy
// @Produce     json
//
// @Param       X-API-Key  header  string  true  "Proxy shared secret"
// @Param       path       path    string  true  "Upstream path below /api/v1"  example(scoreboard)
//
// @Success     200  {object}  object  "Upstream body (status relayed)"
// @Header      200  {string}  Cache-Control  "s-maxage=30, stale-while-revalidate=60"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden or endpoint not allowed"
// @Failure     405  {object}  handlers.ErrorResponse  "Method not allowed"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Configuration missing"
// @Failure     502  {object}  handlers.ErrorResponse  "Failed to reach CTFd API"
// @Router      /api/v1/{path} [get]
func (h *Handlers) Proxy(c *gin.Context) {
	resp, err := h.proxy.Fetch(c.Request.Context(), gateway.APIPath(c.Request.URL.Path), c.Request.URL.RawQuery)
	if err != nil {
		failWith(c, err)
		return
	}
	c.Header("Cache-Control", CacheControl)
	c.Data(resp.Status, "application/json", resp.Body)
}

// DeniedEndpoint answers /api/ paths that have no route, after the proxy
// gates have run, as a disallowed endpoint.
func (h *Handlers) DeniedEndpoint(c *gin.Context) {
	observability.Denied(string(gateway.NotAllowlisted))
	fail(c, http.StatusForbidden, ErrCodeEndpointNotAllowed, msgEndpointNotAllowed)
}
