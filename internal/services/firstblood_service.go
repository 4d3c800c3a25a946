package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/issessions/quest-board-gateway/internal/domain"
	"github.com/issessions/quest-board-gateway/internal/observability"
	"github.com/issessions/quest-board-gateway/internal/repo"
)

// Fallbacks used when no source names a field.
const (
	UnknownChallenge = "Unknown Quest"
	UnknownCategory  = "Unknown"
	UnknownSolver    = "Unknown Adventurer"
)

// Enricher looks up authoritative CTFd records. Both lookups are fail-soft
// and return nil on any failure.
type Enricher interface {
	Submission(ctx context.Context, id int64) *domain.Submission
	Challenge(ctx context.Context, id int64) *domain.Challenge
}

// Notifier delivers an announcement and reports whether it was accepted.
type Notifier interface {
	Send(ctx context.Context, a domain.Announcement) (bool, error)
}

// FirstBloodService turns a verified webhook event into one chat
// announcement. With a DB, delivered announcements are remembered for TTL
// and repeats are acknowledged without posting again.
type FirstBloodService struct {
	DB       *gorm.DB
	CTFd     Enricher
	Notifier Notifier
	TTL      time.Duration
	Now      func() time.Time

	inflight singleflight.Group
}

// ParseEvent decodes a webhook body. The body must be a JSON object with a
// non-zero id.
func ParseEvent(body []byte) (domain.FirstBloodEvent, error) {
	var ev domain.FirstBloodEvent
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ev, ErrInvalidPayload
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.ID <= 0 {
		return ev, ErrMissingSubmissionID
	}
	return ev, nil
}

// Announce enriches ev, posts the announcement and returns the webhook
// response body. The work is detached from ctx cancellation: once a signed
// event is accepted, a client disconnect does not abort delivery.
// Concurrent calls for the same submission share one delivery.
func (s *FirstBloodService) Announce(ctx context.Context, ev domain.FirstBloodEvent) (domain.FirstBloodResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.Tracer("services/FirstBloodService").Start(ctx, "Announce",
		trace.WithAttributes(
			attribute.Int64("ctfd.submission_id", ev.ID),
			attribute.Int64("ctfd.challenge_id", ev.ChallengeID),
		))
	defer span.End()

	v, err, _ := s.inflight.Do(strconv.FormatInt(ev.ID, 10), func() (any, error) {
		return s.announce(ctx, ev)
	})
	if err != nil {
		return domain.FirstBloodResult{}, err
	}
	return v.(domain.FirstBloodResult), nil
}

func (s *FirstBloodService) announce(ctx context.Context, ev domain.FirstBloodEvent) (domain.FirstBloodResult, error) {
	lg := zerolog.Ctx(ctx).With().Int64("submission_id", ev.ID).Logger()
	now := s.now()

	if s.DB != nil {
		rec, err := repo.GetAnnouncement(ctx, s.DB, ev.ID, now)
		switch {
		case err == nil:
			observability.WebhookEvent("duplicate")
			lg.Info().Msg("first blood already announced")
			return rec.Result(), nil
		case !errors.Is(err, repo.ErrNotFound):
			// The store only prevents repeats; losing it must not block delivery.
			lg.Warn().Err(err).Msg("announcement lookup failed")
		}
	}

	sub, ch := s.enrich(ctx, ev)
	if sub == nil {
		observability.WebhookEvent("submission_unavailable")
		lg.Error().Msg("failed to fetch submission")
		return domain.FirstBloodResult{}, fmt.Errorf("%w: %d", ErrSubmissionUnavailable, ev.ID)
	}

	a := Resolve(ev, sub, ch)
	sent, err := s.Notifier.Send(ctx, a)
	if err != nil {
		lg.Warn().Err(err).Msg("discord delivery failed")
	}

	if sent && s.DB != nil {
		if _, err := repo.CreateAnnouncement(ctx, s.DB, ev.ID, a.ChallengeName, a.SolverName, now, s.TTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg.Warn().Err(err).Msg("failed to record announcement")
		}
	}

	outcome := "announced"
	if !sent {
		outcome = "delivery_failed"
	}
	observability.WebhookEvent(outcome)
	lg.Info().
		Str("challenge", a.ChallengeName).
		Str("solver", a.SolverName).
		Bool("discord_sent", sent).
		Msg("first blood processed")

	return domain.FirstBloodResult{
		Success:     true,
		DiscordSent: sent,
		Challenge:   a.ChallengeName,
		Solver:      a.SolverName,
	}, nil
}

// enrich fetches the submission and the challenge concurrently. When the
// payload names no challenge, the submission's challenge id is tried after.
func (s *FirstBloodService) enrich(ctx context.Context, ev domain.FirstBloodEvent) (*domain.Submission, *domain.Challenge) {
	var (
		sub *domain.Submission
		ch  *domain.Challenge
		g   errgroup.Group
	)
	g.Go(func() error {
		sub = s.CTFd.Submission(ctx, ev.ID)
		return nil
	})
	g.Go(func() error {
		ch = s.CTFd.Challenge(ctx, ev.ChallengeID)
		return nil
	})
	_ = g.Wait()

	if ch == nil && ev.ChallengeID <= 0 && sub != nil && sub.ChallengeID > 0 {
		ch = s.CTFd.Challenge(ctx, sub.ChallengeID)
	}
	return sub, ch
}

// Resolve picks each announcement field from, in order: the fetched
// challenge, the submission's embedded challenge, the payload's echoed
// challenge, then the fixed fallback. sub must be non-nil.
func Resolve(ev domain.FirstBloodEvent, sub *domain.Submission, ch *domain.Challenge) domain.Announcement {
	sources := []*domain.Challenge{ch, sub.Challenge, ev.ChallengeSnippet()}

	a := domain.Announcement{
		ChallengeName: UnknownChallenge,
		Category:      UnknownCategory,
		SolverName:    UnknownSolver,
		SolvedAt:      sub.Date,
	}
	if name, ok := firstString(sources, func(c *domain.Challenge) string { return c.Name }); ok {
		a.ChallengeName = name
	}
	if cat, ok := firstString(sources, func(c *domain.Challenge) string { return c.Category }); ok {
		a.Category = cat
	}
	for _, c := range sources {
		if c != nil && c.Value != nil {
			a.Value = *c.Value
			break
		}
	}
	if sub.User != nil && sub.User.Name != "" {
		a.SolverName = sub.User.Name
	}
	if sub.Team != nil {
		a.TeamName = sub.Team.Name
	}
	if a.SolvedAt == "" {
		a.SolvedAt = ev.Date
	}
	return a
}

func firstString(sources []*domain.Challenge, field func(*domain.Challenge) string) (string, bool) {
	for _, c := range sources {
		if c == nil {
			continue
		}
		if v := field(c); v != "" {
			return v, true
		}
	}
	return "", false
}

func (s *FirstBloodService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
