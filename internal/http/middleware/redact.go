package middleware

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor scrubs secrets out of request metadata before it is logged.
// Request and response bodies are never logged.
//
// Header values named in the mask set are replaced wholesale; query
// parameters named in the param set are replaced by value; everything else
// passes through a pattern scrub for emails and signature-looking values.
type Redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// v1=<64 hex> as carried by webhook signature headers.
	sigRE = regexp.MustCompile(`(?i)\bv1=[0-9a-f]{16,}\b`)
)

// DefaultRedactor masks the headers and parameters that carry gateway
// credentials: the proxy key, CTFd tokens, cookies and webhook signatures,
// plus the handshake ?token=.
func DefaultRedactor() *Redactor {
	return NewRedactor(
		[]string{"Authorization", "Cookie", "Set-Cookie", "X-API-Key", "CTFd-Webhook-Signature"},
		[]string{"token", "secret", "api_key", "key"},
	)
}

// NewRedactor builds a Redactor. Names are matched case-insensitively.
func NewRedactor(headers, params []string) *Redactor {
	r := &Redactor{
		headers: make(map[string]struct{}, len(headers)),
		params:  make(map[string]struct{}, len(params)),
	}
	for _, h := range headers {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, p := range params {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.params[p] = struct{}{}
		}
	}
	return r
}

// Value applies the pattern scrub to a free-form value.
func (r *Redactor) Value(s string) string {
	if s == "" {
		return s
	}
	s = sigRE.ReplaceAllString(s, "v1="+redacted)
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// Headers returns a flattened, scrubbed copy of h.
func (r *Redactor) Headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = r.Value(strings.Join(vv, ", "))
	}
	return out
}

// Query scrubs a raw query string. Unparseable input is pattern-scrubbed only.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return raw
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.Value(raw)
	}
	for k := range vals {
		if _, ok := r.params[strings.ToLower(k)]; ok {
			vals[k] = []string{redacted}
			continue
		}
		for i, v := range vals[k] {
			vals[k][i] = r.Value(v)
		}
	}
	// Encode sorts keys, which keeps log lines stable.
	return vals.Encode()
}
