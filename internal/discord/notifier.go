// Package discord posts first-blood announcements to a Discord webhook.
//
// Names in an announcement come from CTF players, so they are escaped for
// Discord markdown, truncated to Discord's field limits, and the message
// disables mention parsing so a team called "@everyone" pings nobody.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/issessions/quest-board-gateway/internal/domain"
	"github.com/issessions/quest-board-gateway/internal/observability"
)

const (
	botName   = "The Quest Giver"
	avatarURL = "https://i.imgur.com/AfFp7pu.png"
	thumbURL  = "https://cdn.discordapp.com/emojis/1070168841814675507.webp"
	title     = "🩸 FIRST BLOOD! ⚔️"
	content   = "🏆 A hero has claimed **First Blood**!"
	footer    = "ISSessions Fantasy CTF 2026 — Guild Quest Board"
	gold      = 0xffd700

	// Discord limits, in characters.
	maxNameLen  = 100
	maxFieldLen = 1024

	maxErrorBody = 1 << 10
)

// Message is the webhook execute payload.
type Message struct {
	Username        string          `json:"username"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
	Content         string          `json:"content"`
	Embeds          []Embed         `json:"embeds"`
	AllowedMentions AllowedMentions `json:"allowed_mentions"`
}

// AllowedMentions with an empty Parse list suppresses every mention.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

// Notifier delivers announcements to one webhook URL.
type Notifier struct {
	url    string
	http   *http.Client
	tracer trace.Tracer
}

// NewNotifier returns a Notifier whose deliveries are bounded by timeout.
func NewNotifier(webhookURL string, timeout time.Duration) *Notifier {
	return &Notifier{
		url:    webhookURL,
		http:   &http.Client{Timeout: timeout},
		tracer: observability.Tracer("discord"),
	}
}

// BuildMessage renders a as a Discord message.
func BuildMessage(a domain.Announcement) Message {
	solver := "**" + Escape(truncate(a.SolverName, maxNameLen)) + "**"
	if a.TeamName != "" {
		solver += " of party **" + Escape(truncate(a.TeamName, maxNameLen)) + "**"
	}

	embed := Embed{
		Title:       title,
		Description: solver + " has drawn **First Blood** on a quest!",
		Color:       gold,
		Fields: []EmbedField{
			{Name: "🗡️ Quest", Value: Escape(truncate(a.ChallengeName, maxFieldLen/2)), Inline: true},
			{Name: "📜 Category", Value: Escape(truncate(a.Category, maxFieldLen/2)), Inline: true},
			{Name: "💰 Gold Pieces", Value: strconv.Itoa(a.Value) + " GP", Inline: true},
		},
		Footer:    &EmbedFooter{Text: footer},
		Timestamp: timestamp(a.SolvedAt),
		Thumbnail: &EmbedImage{URL: thumbURL},
	}
	return Message{
		Username:        botName,
		AvatarURL:       avatarURL,
		Content:         content,
		Embeds:          []Embed{embed},
		AllowedMentions: AllowedMentions{Parse: []string{}},
	}
}

// Send posts the announcement once. It reports whether Discord accepted it;
// a rejection or transport failure returns false with the reason.
func (n *Notifier) Send(ctx context.Context, a domain.Announcement) (bool, error) {
	ctx, span := n.tracer.Start(ctx, "discord.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	payload, err := json.Marshal(BuildMessage(a))
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		span.SetStatus(codes.Error, "bad webhook url")
		return false, fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return false, fmt.Errorf("discord: post: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		span.SetStatus(codes.Error, "rejected")
		return false, fmt.Errorf("discord: status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	return true, nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, `~`, `\~`, "`", "\\`",
	`|`, `\|`, `>`, `\>`, `[`, `\[`, `]`, `\]`, `#`, `\#`,
	"\r", " ", "\n", " ",
)

// Escape neutralises Discord markdown in s and flattens line breaks.
func Escape(s string) string {
	return markdownEscaper.Replace(s)
}

// truncate composes s (NFC) and shortens it to at most n runes, marking the
// cut with an ellipsis. Composing first keeps a base letter and its accent
// on the same side of the cut.
func truncate(s string, n int) string {
	s = norm.NFC.String(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// timestamp normalises an upstream date for the embed. Discord rejects the
// whole message on an unparseable timestamp, so bad input is dropped.
func timestamp(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
