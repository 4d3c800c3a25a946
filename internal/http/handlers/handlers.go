package handlers

import (
	"context"
	"time"

	"github.com/issessions/quest-board-gateway/internal/ctfd"
	"github.com/issessions/quest-board-gateway/internal/domain"
)

//
// Service contracts (context-aware)
//

// ProxyService relays allowlisted reads to the CTFd API.
type ProxyService interface {
	// Fetch forwards apiPath (e.g. "v1/teams/3") and returns the sanitized
	// upstream reply. Non-2xx replies are returned, not treated as errors.
	Fetch(ctx context.Context, apiPath, rawQuery string) (*ctfd.Response, error)
}

// FirstBloodService announces verified first-blood events.
type FirstBloodService interface {
	Announce(ctx context.Context, ev domain.FirstBloodEvent) (domain.FirstBloodResult, error)
}

// SignatureVerifier checks a webhook signature header against a raw body.
type SignatureVerifier interface {
	Verify(header string, body []byte) error
}

//
// Handler wiring
//

// Options configures the webhook endpoint.
type Options struct {
	// WebhookSecret answers the GET handshake.
	WebhookSecret string
	// MaxWebhookBody caps a delivery body in bytes.
	MaxWebhookBody int64
	// Now is the clock for /api/test; nil means time.Now.
	Now func() time.Time
}

// Handlers groups the gateway's HTTP endpoints.
type Handlers struct {
	proxy      ProxyService
	firstBlood FirstBloodService
	verifier   SignatureVerifier
	opt        Options
}

// New constructs Handlers bound to the given services.
func New(proxy ProxyService, firstBlood FirstBloodService, verifier SignatureVerifier, opt Options) *Handlers {
	return &Handlers{proxy: proxy, firstBlood: firstBlood, verifier: verifier, opt: opt}
}
