// Package processor turns decoded code payloads into actionable results.
// It performs no I/O: every result is a function of the message and the current time.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/pkg/models"
)

// DefaultMaxAge is how long a link code stays valid after generation.
const DefaultMaxAge = 5 * time.Minute

type Reason string

const (
	ReasonInvalid Reason = "invalid"
	ReasonExpired Reason = "expired"
)

const (
	MessageInvalid = "invalid code"
	MessageExpired = "This QR code has expired. Please generate a new one."
)

// PendingRelation describes a link the caller may choose to persist.
type PendingRelation struct {
	Relation models.Relation `json:"relation"`
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
}

// ContactRelation is the relation the scanning side records for the sender.
func (p PendingRelation) ContactRelation() models.Relation {
	return p.Relation.Inverse()
}

// SnapshotWrite is a snapshot ready to store under ContactID.
type SnapshotWrite struct {
	ContactID string                  `json:"contactId"`
	Snapshot  models.ActivitySnapshot `json:"snapshot"`
}

// Result is the outcome of processing one payload. Rejections are values, not errors.
type Result struct {
	Accepted bool             `json:"accepted"`
	Reason   Reason           `json:"reason,omitempty"`
	Kind     payload.Kind     `json:"kind,omitempty"`
	Message  string           `json:"message"`
	Link     *PendingRelation `json:"link,omitempty"`
	Snapshot *SnapshotWrite   `json:"snapshot,omitempty"`
	Summary  string           `json:"summary,omitempty"`
}

func invalid() Result {
	return Result{Reason: ReasonInvalid, Message: MessageInvalid}
}

type Processor struct {
	maxAge time.Duration
}

// New returns a processor; maxAge <= 0 selects DefaultMaxAge.
func New(maxAge time.Duration) *Processor {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Processor{maxAge: maxAge}
}

func (p *Processor) MaxAge() time.Duration { return p.maxAge }

// ProcessText decodes raw text from a scan or a manual paste and processes it.
func (p *Processor) ProcessText(ctx context.Context, text string, now time.Time) Result {
	m, err := payload.Decode(ctx, text)
	if err != nil {
		return invalid()
	}
	return p.Process(m, now)
}

// Process validates freshness and builds the result for m.
func (p *Processor) Process(m payload.Message, now time.Time) Result {
	if m == nil {
		return invalid()
	}
	return payload.Match(m,
		func(l *payload.Link) Result { return p.link(l, now) },
		func(s *payload.Snapshot) Result { return p.snapshot(s, now) },
	)
}

func (p *Processor) link(l *payload.Link, now time.Time) Result {
	if !l.Relation.Valid() || l.UserID == "" {
		return invalid()
	}
	if now.Sub(l.IssuedAt()) > p.maxAge {
		return Result{Reason: ReasonExpired, Kind: payload.KindLink, Message: MessageExpired}
	}
	return Result{
		Accepted: true,
		Kind:     payload.KindLink,
		Message:  fmt.Sprintf("Link request from %s: add as %s", l.UserName, l.Relation.Inverse().DisplayName()),
		Link:     &PendingRelation{Relation: l.Relation, UserID: l.UserID, UserName: l.UserName},
	}
}

func (p *Processor) snapshot(s *payload.Snapshot, now time.Time) Result {
	if !s.CurrentRole.Valid() || s.UserID == "" {
		return invalid()
	}

	role := s.CurrentRole
	today := models.DayProgress{
		Date:      models.DateKey(s.IssuedAt().In(now.Location())),
		Morning:   s.TodayProgress.Morning,
		Afternoon: s.TodayProgress.Afternoon,
		Night:     s.TodayProgress.Night,
	}
	var recent []models.DayProgress
	if len(s.Recent) > 0 {
		recent = append(recent, s.Recent...)
	}

	summary := Summary(s.TodayProgress)
	return Result{
		Accepted: true,
		Kind:     payload.KindSnapshot,
		Message:  fmt.Sprintf("Progress from %s (%s): %s", s.UserName, role.DisplayName(), summary),
		Snapshot: &SnapshotWrite{
			ContactID: s.UserID,
			Snapshot:  models.ActivitySnapshot{AsOf: s.Timestamp, Role: &role, Today: &today, Recent: recent},
		},
		Summary: summary,
	}
}

// Summary renders the three slots as "Morning ✓, Afternoon ✗, Night ✗".
func Summary(p payload.Progress) string {
	mark := func(done bool) string {
		if done {
			return "✓"
		}
		return "✗"
	}
	return strings.Join([]string{
		"Morning " + mark(p.Morning),
		"Afternoon " + mark(p.Afternoon),
		"Night " + mark(p.Night),
	}, ", ")
}
