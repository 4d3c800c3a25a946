// Package allowlist implements small default-deny lists of literal strings and
// regular expressions. Hosts, origins and upstream API paths are all expressed
// as a List so the handler logic stays data-driven.
package allowlist

import (
	"fmt"
	"regexp"
)

// Rule is a single allowlist entry: either a literal that must match exactly,
// or a compiled pattern.
type Rule struct {
	literal string
	pattern *regexp.Regexp
}

// Literal returns a rule that matches s exactly.
func Literal(s string) Rule { return Rule{literal: s} }

// Pattern returns a rule backed by re.
func Pattern(re *regexp.Regexp) Rule { return Rule{pattern: re} }

// MustPattern compiles expr and panics on error. Intended for static tables.
func MustPattern(expr string) Rule { return Pattern(regexp.MustCompile(expr)) }

// Matches reports whether candidate satisfies the rule.
func (r Rule) Matches(candidate string) bool {
	if r.pattern != nil {
		return r.pattern.MatchString(candidate)
	}
	return r.literal == candidate
}

// String renders the rule for logs.
func (r Rule) String() string {
	if r.pattern != nil {
		return "re:" + r.pattern.String()
	}
	return r.literal
}

// List is an ordered, immutable set of rules.
type List []Rule

// Matches reports whether any rule accepts candidate. The empty string never
// matches, so absent headers are always denied.
func (l List) Matches(candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, r := range l {
		if r.Matches(candidate) {
			return true
		}
	}
	return false
}

// Count returns how many rules accept candidate.
func (l List) Count(candidate string) int {
	n := 0
	for _, r := range l {
		if r.Matches(candidate) {
			n++
		}
	}
	return n
}

// Parse builds a List from config entries. classify splits an entry into its
// expression and a flag telling whether it is a pattern.
func Parse(entries []string, classify func(string) (string, bool)) (List, error) {
	out := make(List, 0, len(entries))
	for _, e := range entries {
		expr, isPattern := classify(e)
		if !isPattern {
			out = append(out, Literal(expr))
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("allowlist: compile %q: %w", expr, err)
		}
		out = append(out, Pattern(re))
	}
	return out, nil
}
