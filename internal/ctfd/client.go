// Package ctfd is a read-only client for the CTFd REST API. It issues GET
// requests with the service token and returns raw JSON for relaying, plus
// typed, fail-soft lookups used to enrich webhook events.
package ctfd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/issessions/quest-board-gateway/internal/domain"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

// MaxBodyBytes bounds any upstream response body.
const MaxBodyBytes = 8 << 20

var (
	// ErrUnavailable wraps every failure to obtain a usable upstream response:
	// transport errors, oversized bodies and bodies that are not JSON.
	ErrUnavailable = errors.New("ctfd: upstream unavailable")
	errTooLarge    = errors.New("response body too large")
	errNotJSON     = errors.New("response body is not JSON")
)

// Response is a relayable upstream reply.
type Response struct {
	Status int
	Body   []byte
}

// Client talks to one CTFd instance. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient builds a client for baseURL authenticating with token. Every
// request is bounded by timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		tracer:  observability.Tracer("ctfd"),
	}
}

// Get fetches /api/<apiPath>?<rawQuery> and returns the upstream status and
// body. Non-2xx replies are not errors; they are relayed as-is as long as the
// body is JSON. kind labels metrics and must be low-cardinality.
func (c *Client) Get(ctx context.Context, kind, apiPath, rawQuery string) (*Response, error) {
	target := c.baseURL + "/api/" + strings.TrimLeft(apiPath, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	ctx, span := c.tracer.Start(ctx, "ctfd.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ctfd.endpoint", kind),
			attribute.String("url.path", "/api/"+apiPath),
		))
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, target)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		observability.Upstream(kind, outcomeOf(err), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unavailable")
		zerolog.Ctx(ctx).Warn().Err(err).Str("endpoint", kind).Msg("ctfd request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	outcome := "ok"
	if resp.Status >= 400 {
		outcome = "status_" + strconv.Itoa(resp.Status/100) + "xx"
	}
	observability.Upstream(kind, outcome, elapsed)
	return resp, nil
}

func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodyBytes {
		return nil, errTooLarge
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, errNotJSON
	}
	return &Response{Status: res.StatusCode, Body: body}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, errTooLarge):
		return "too_large"
	case errors.Is(err, errNotJSON):
		return "bad_body"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return "timeout"
	}
	return "transport_error"
}

// envelope is CTFd's standard reply wrapper.
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    *T   `json:"data"`
}

// Submission returns submission id, or nil if it cannot be fetched or the
// reply is unsuccessful.
func (c *Client) Submission(ctx context.Context, id int64) *domain.Submission {
	return fetchData[domain.Submission](ctx, c, "submission", "v1/submissions/", id)
}

// Challenge returns challenge id, or nil on any failure. An id of 0 makes no
// request.
func (c *Client) Challenge(ctx context.Context, id int64) *domain.Challenge {
	return fetchData[domain.Challenge](ctx, c, "challenge", "v1/challenges/", id)
}

func fetchData[T any](ctx context.Context, c *Client, kind, prefix string, id int64) *T {
	if id <= 0 {
		return nil
	}
	resp, err := c.Get(ctx, kind, prefix+strconv.FormatInt(id, 10), "")
	if err != nil || resp.Status < 200 || resp.Status > 299 {
		return nil
	}
	var env envelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil || !env.Success {
		return nil
	}
	return env.Data
}
