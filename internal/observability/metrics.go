package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors. HTTP-level metrics live in the middleware package; these
// track gateway decisions and upstream behaviour with bounded label sets.
var (
	deniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_denied_total",
			Help: "Requests refused by a gateway gate, by reason.",
		},
		[]string{"reason"},
	)

	upstreamTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctfd_upstream_requests_total",
			Help: "Requests issued to the CTFd API, by endpoint kind and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ctfd_upstream_duration_seconds",
			Help:    "Latency of CTFd API requests in seconds.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "First-blood webhook events, by outcome.",
		},
		[]string{"outcome"},
	)

	seenMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_seen_members",
			Help: "User IDs currently visible through the member registry.",
		},
	)
)

func init() {
	prometheus.MustRegister(deniedTotal, upstreamTotal, upstreamDuration, webhookEvents, seenMembers)
}

// Denied counts a request refused for reason (e.g. "rate_limited").
func Denied(reason string) { deniedTotal.WithLabelValues(reason).Inc() }

// Upstream records one CTFd request. endpoint must be a low-cardinality kind
// such as "proxy" or "submission", never a raw path.
func Upstream(endpoint, outcome string, seconds float64) {
	upstreamTotal.WithLabelValues(endpoint, outcome).Inc()
	upstreamDuration.WithLabelValues(endpoint).Observe(seconds)
}

// WebhookEvent counts a webhook outcome (e.g. "announced", "bad_signature").
func WebhookEvent(outcome string) { webhookEvents.WithLabelValues(outcome).Inc() }

// SetSeenMembers publishes the member registry size.
func SetSeenMembers(n int) { seenMembers.Set(float64(n)) }
