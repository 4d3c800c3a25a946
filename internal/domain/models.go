// Package domain defines the entities the gateway moves around: the inbound
// first-blood webhook payload, the CTFd records it is enriched from, and the
// persisted announcement used to de-duplicate deliveries.
package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Named is the {id, name} shape CTFd uses for users and teams.
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Challenge is a CTFd challenge record (or the snippet of one embedded in a
// submission or webhook payload).
type Challenge struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Value       *int   `json:"value"`
	Solves      int    `json:"solves,omitempty"`
	Description string `json:"description,omitempty"`
}

// Submission is a CTFd submission record. Team is nil in user mode.
type Submission struct {
	ID          int64      `json:"id"`
	ChallengeID int64      `json:"challenge_id"`
	Challenge   *Challenge `json:"challenge"`
	User        *Named     `json:"user"`
	Team        *Named     `json:"team"`
	Date        string     `json:"date"`
	Type        string     `json:"type"`
}

// FirstBloodEvent is the inbound webhook payload. Its echoed snippets are
// untrusted and kept raw; they are only consulted when re-fetching fails.
type FirstBloodEvent struct {
	ID          int64           `json:"id"`
	ChallengeID int64           `json:"challenge_id"`
	Challenge   json.RawMessage `json:"challenge,omitempty"`
	Team        json.RawMessage `json:"team,omitempty"`
	User        json.RawMessage `json:"user,omitempty"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
}

// ChallengeSnippet decodes the echoed challenge, or returns nil when it is
// absent or not an object.
func (e FirstBloodEvent) ChallengeSnippet() *Challenge {
	raw := bytes.TrimSpace(e.Challenge)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil
	}
	return &ch
}

// Announcement is the resolved content of one first-blood notification.
type Announcement struct {
	ChallengeName string
	Category      string
	Value         int
	SolverName    string
	TeamName      string // empty when the solver has no team
	SolvedAt      string // RFC 3339 as reported upstream; may be empty
}

// FirstBloodResult is the webhook's success response body.
type FirstBloodResult struct {
	Success     bool   `json:"success"`
	DiscordSent bool   `json:"discord_sent"`
	Challenge   string `json:"challenge"`
	Solver      string `json:"solver"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// AnnouncementRecord remembers a delivered announcement so that a repeated
// delivery of the same submission is acknowledged without posting twice.
type AnnouncementRecord struct {
	ID            string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	SubmissionID  int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_announcement_submission"`
	ChallengeName string    `gorm:"type:TEXT NOT NULL"`
	SolverName    string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt     time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt     time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (AnnouncementRecord) TableName() string { return "announcements" }

// Result rebuilds the response that was returned when the record was made.
func (r AnnouncementRecord) Result() FirstBloodResult {
	return FirstBloodResult{
		Success:     true,
		DiscordSent: true,
		Challenge:   r.ChallengeName,
		Solver:      r.SolverName,
		Duplicate:   true,
	}
}
