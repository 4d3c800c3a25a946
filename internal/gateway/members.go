// Package gateway holds the request-filtering core of the scoreboard edge
// proxy: the host/origin trust policy, the upstream endpoint allowlist, the
// registry of team members this instance has seen, and the response
// sanitizer that feeds it.
//
// All state is owned by explicit values constructed once at startup and
// passed to the HTTP layer; nothing here is package-global.
package gateway

import "sync"

// SeenMembers is the set of user IDs observed as members or captain of a team
// whose detail passed through this process. It is append-only for the life
// of the process and safe for concurrent use.
type SeenMembers struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewSeenMembers returns an empty registry.
func NewSeenMembers() *SeenMembers {
	return &SeenMembers{ids: make(map[int64]struct{})}
}

// Add records ids and returns how many were new.
func (s *SeenMembers) Add(ids ...int64) int {
	if len(ids) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		added++
	}
	return added
}

// Has reports whether id has been seen.
func (s *SeenMembers) Has(id int64) bool {
	s.mu.RLock()
	_, ok := s.ids[id]
	s.mu.RUnlock()
	return ok
}

// Len returns the registry size.
func (s *SeenMembers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
