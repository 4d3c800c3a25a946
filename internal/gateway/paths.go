package gateway

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/issessions/quest-board-gateway/internal/allowlist"
)

// DefaultEndpoints is the general allowlist of read-only upstream API paths
// the scoreboard needs. Per-user endpoints are deliberately absent; they are
// gated by the member registry instead.
var DefaultEndpoints = allowlist.List{
	allowlist.MustPattern(`^v1/scoreboard(/top/\d+)?$`),
	allowlist.MustPattern(`^v1/teams$`),
	allowlist.MustPattern(`^v1/teams/\d+$`),
	allowlist.MustPattern(`^v1/teams/\d+/solves$`),
	allowlist.MustPattern(`^v1/teams/\d+/members$`),
	allowlist.MustPattern(`^v1/challenges$`),
	allowlist.MustPattern(`^v1/challenges/\d+$`),
	allowlist.MustPattern(`^v1/submissions/\d+$`),
}

var (
	userPathRE       = regexp.MustCompile(`^v1/users/(\d+)(/solves)?$`)
	teamDetailPathRE = regexp.MustCompile(`^v1/teams/\d+$`)
)

// Denial explains why a path was refused.
type Denial string

const (
	Allowed          Denial = ""
	NotAllowlisted   Denial = "not_allowlisted"
	MemberNotVisible Denial = "member_not_visible"
)

// EndpointFilter decides which upstream paths may be forwarded.
type EndpointFilter struct {
	endpoints allowlist.List
	members   *SeenMembers
}

// NewEndpointFilter builds a filter over endpoints, consulting members for
// the per-user detail and solves endpoints.
func NewEndpointFilter(endpoints allowlist.List, members *SeenMembers) *EndpointFilter {
	return &EndpointFilter{endpoints: endpoints, members: members}
}

// Check returns Allowed when apiPath may be forwarded, or the reason it may not.
func (f *EndpointFilter) Check(apiPath string) Denial {
	if id, ok := UserIDFromPath(apiPath); ok {
		if f.members != nil && f.members.Has(id) {
			return Allowed
		}
		return MemberNotVisible
	}
	if f.endpoints.Count(apiPath) != 1 {
		return NotAllowlisted
	}
	return Allowed
}

// Forwardable is the boolean form of Check.
func (f *EndpointFilter) Forwardable(apiPath string) bool {
	return f.Check(apiPath) == Allowed
}

// UserIDFromPath extracts {id} from v1/users/{id} and v1/users/{id}/solves.
func UserIDFromPath(apiPath string) (int64, bool) {
	m := userPathRE.FindStringSubmatch(apiPath)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsUserDetail reports whether apiPath is the bare v1/users/{id} endpoint.
func IsUserDetail(apiPath string) bool {
	m := userPathRE.FindStringSubmatch(apiPath)
	return m != nil && m[2] == ""
}

// IsTeamDetail reports whether apiPath is the singular v1/teams/{id} endpoint.
func IsTeamDetail(apiPath string) bool {
	return teamDetailPathRE.MatchString(apiPath)
}

// APIPath turns a request path such as "/api/v1/teams/4" into "v1/teams/4".
// Empty segments are dropped so "//" cannot smuggle an alternate shape past
// the allowlist.
func APIPath(requestPath string) string {
	parts := strings.Split(requestPath, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) > 0 && kept[0] == "api" {
		kept = kept[1:]
	}
	return strings.Join(kept, "/")
}
