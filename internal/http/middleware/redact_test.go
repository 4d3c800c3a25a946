package middleware

import (
	"net/http"
	"strings"
	"testing"
)

func TestRedactor_Headers(t *testing.T) {
	h := http.Header{}
	h.Set("X-API-Key", "k-123")
	h.Set("Authorization", "Token ctfd_abc")
	h.Set("CTFd-Webhook-Signature", "t=1700000000,v1=deadbeefdeadbeefdeadbeef")
	h.Set("X-Contact", "alice@example.com")
	h.Set("User-Agent", "curl/8")

	got := DefaultRedactor().Headers(h)
	for _, k := range []string{"X-Api-Key", "Authorization", "Ctfd-Webhook-Signature"} {
		if got[k] != redacted {
			t.Fatalf("%s = %q, want masked", k, got[k])
		}
	}
	if got["X-Contact"] != "[REDACTED:email]" {
		t.Fatalf("email not scrubbed: %q", got["X-Contact"])
	}
	if got["User-Agent"] != "curl/8" {
		t.Fatalf("benign header changed: %q", got["User-Agent"])
	}
}

func TestRedactor_Query(t *testing.T) {
	r := DefaultRedactor()
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"token=abc", "token=%5BREDACTED%5D"},
		{"TOKEN=abc&page=2", "TOKEN=%5BREDACTED%5D&page=2"},
		{"who=bob%40example.com", "who=%5BREDACTED%3Aemail%5D"},
	}
	for _, tt := range tests {
		if got := r.Query(tt.in); got != tt.want {
			t.Fatalf("Query(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	// Unparseable input still gets the pattern scrub.
	if got := r.Query("a=%zz&sig=v1=0123456789abcdef0123"); strings.Contains(got, "0123456789abcdef") {
		t.Fatalf("signature leaked: %q", got)
	}
}

func TestNewRedactor_IgnoresBlankNames(t *testing.T) {
	r := NewRedactor([]string{" ", "X-Secret"}, []string{""})
	if len(r.headers) != 1 || len(r.params) != 0 {
		t.Fatalf("unexpected sets: %v %v", r.headers, r.params)
	}
}
