package gateway

import "github.com/issessions/quest-board-gateway/internal/allowlist"

// TrustPolicy classifies requests as same-origin (via the edge-injected
// forwarded host, or the plain Host) or cross-origin (via Origin).
type TrustPolicy struct {
	Hosts   allowlist.List
	Origins allowlist.List
}

// IsRequestTrusted reports whether the request may use the proxy. The
// forwarded host is set by the hosting edge and cannot be forged by callers;
// cross-origin browser calls never carry it but do carry Origin.
func (p TrustPolicy) IsRequestTrusted(forwardedHost, host, origin string) bool {
	if p.Hosts.Matches(forwardedHost) || p.Hosts.Matches(host) {
		return true
	}
	return p.OriginAllowed(origin)
}

// OriginAllowed reports whether origin is on the Origin allowlist.
func (p TrustPolicy) OriginAllowed(origin string) bool {
	return p.Origins.Matches(origin)
}

// AllowOriginHeader returns the Access-Control-Allow-Origin value for origin:
// the origin itself when allowed, otherwise the empty string. Never "*".
func (p TrustPolicy) AllowOriginHeader(origin string) string {
	if p.OriginAllowed(origin) {
		return origin
	}
	return ""
}
