// Package webhook verifies signed CTFd webhook deliveries.
//
// CTFd signs each delivery with HMAC-SHA256 over "<t>.<body>" and sends
//
//	CTFd-Webhook-Signature: t=<unix seconds>,v1=<hex digest>
//
// A delivery is accepted only when the digest matches in constant time and
// t is within MaxSkew of the local clock.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeader carries the delivery signature.
	SignatureHeader = "CTFd-Webhook-Signature"
	// DefaultMaxSkew is the replay window either side of now.
	DefaultMaxSkew = 300 * time.Second
	// DefaultMaxBody caps a delivery body.
	DefaultMaxBody = 64 << 10
)

var (
	ErrMissingSignature   = errors.New("webhook: missing signature")
	ErrMalformedSignature = errors.New("webhook: malformed signature")
	ErrStaleSignature     = errors.New("webhook: signature timestamp outside window")
	ErrSignatureMismatch  = errors.New("webhook: signature mismatch")
	ErrBodyTooLarge       = errors.New("webhook: body too large")
)

// Signature is a parsed signature header. A header may carry several v1
// digests (e.g. during secret rotation); any one matching is enough.
// RawTimestamp is t exactly as sent; the digest covers that text.
type Signature struct {
	Timestamp    int64
	RawTimestamp string
	Digests      [][]byte
}

// ParseSignature parses "t=<unix>,v1=<hex>[,v1=<hex>...]". Unknown keys are
// ignored. Both t and at least one v1 are required; t must be an integer and
// every v1 valid hex.
func ParseSignature(header string) (Signature, error) {
	if strings.TrimSpace(header) == "" {
		return Signature{}, ErrMissingSignature
	}
	var sig Signature
	haveT := false
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Signature{}, ErrMalformedSignature
			}
			sig.Timestamp, sig.RawTimestamp, haveT = ts, v, true
		case "v1":
			d, err := hex.DecodeString(v)
			if err != nil || len(d) != sha256.Size {
				return Signature{}, ErrMalformedSignature
			}
			sig.Digests = append(sig.Digests, d)
		}
	}
	if !haveT || len(sig.Digests) == 0 {
		return Signature{}, ErrMalformedSignature
	}
	return sig, nil
}

// Verifier checks delivery signatures against a shared secret.
type Verifier struct {
	secret  []byte
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewVerifier returns a Verifier with the default replay window.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), MaxSkew: DefaultMaxSkew, Now: time.Now}
}

// Verify returns nil when header is a fresh, valid signature of body.
func (v *Verifier) Verify(header string, body []byte) error {
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}
	// Whole seconds on both sides; time.Duration saturates for far-off t.
	window := int64(v.MaxSkew / time.Second)
	d := v.Now().Unix() - sig.Timestamp
	if d > window || d < -window {
		return ErrStaleSignature
	}
	want := digest(v.secret, sig.RawTimestamp, body)
	for _, got := range sig.Digests {
		if hmac.Equal(got, want) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign produces a header value for body at t. Used by tests and tooling that
// replays deliveries.
func Sign(secret string, t time.Time, body []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(digest([]byte(secret), ts, body))
}

// Handshake answers CTFd's endpoint validation: the hex HMAC of token.
func Handshake(secret, token string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}

func digest(secret []byte, ts string, body []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(ts))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}

// ReadBody reads at most max bytes from r. A declared contentLength above max
// fails before reading; otherwise a body longer than max fails after reading
// max+1 bytes.
func ReadBody(r io.Reader, contentLength, max int64) ([]byte, error) {
	if contentLength > max {
		return nil, ErrBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
