package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/issessions/quest-board-gateway/internal/ctfd"
	"github.com/issessions/quest-board-gateway/internal/gateway"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

// Upstream fetches raw CTFd replies.
type Upstream interface {
	Get(ctx context.Context, kind, apiPath, rawQuery string) (*ctfd.Response, error)
}

// ProxyService relays allowlisted reads to CTFd and sanitizes the replies.
type ProxyService struct {
	Filter    *gateway.EndpointFilter
	Sanitizer gateway.Sanitizer
	Upstream  Upstream
}

// Fetch forwards apiPath (e.g. "v1/teams/3") with rawQuery. Team detail
// replies feed the member registry; user detail replies lose sensitive
// fields. Non-2xx upstream replies are returned, not treated as errors.
func (s *ProxyService) Fetch(ctx context.Context, apiPath, rawQuery string) (*ctfd.Response, error) {
	ctx, span := otel.Tracer("services/ProxyService").Start(ctx, "Fetch",
		trace.WithAttributes(attribute.String("ctfd.path", apiPath)))
	defer span.End()

	if denial := s.Filter.Check(apiPath); denial != gateway.Allowed {
		observability.Denied(string(denial))
		span.SetAttributes(attribute.String("gateway.denial", string(denial)))
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotAllowed, denial)
	}

	resp, err := s.Upstream.Get(ctx, "proxy", apiPath, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	body, added := s.Sanitizer.Apply(apiPath, resp.Body)
	if added > 0 && s.Sanitizer.Members != nil {
		observability.SetSeenMembers(s.Sanitizer.Members.Len())
	}
	return &ctfd.Response{Status: resp.Status, Body: body}, nil
}
