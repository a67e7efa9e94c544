package payload

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garnizeh/triad/pkg/models"
)

// Kind is the wire discriminator carried in the "type" field.
type Kind string

const (
	KindLink     Kind = "triad-link"
	KindSnapshot Kind = "activity-snapshot"
)

const (
	// Version is the only envelope version this package reads or writes.
	Version = "1.0"
	// MaxEncodedSize bounds the compact text form so the rendered code stays scannable.
	MaxEncodedSize = 2500
	// MaxRecentDays bounds the optional recent-day list of a snapshot.
	MaxRecentDays = 7
	// AnonymousName stands in for profiles without a display name.
	AnonymousName = "Anonymous"
)

var (
	ErrInvalidCode = errors.New("invalid code")
	ErrTooLarge    = errors.New("payload too large for a code")
)

// Sender identifies the device that generated a message.
type Sender struct {
	UserID   string
	UserName string
}

// Message is one of *Link or *Snapshot. The set is closed; use Match to dispatch.
type Message interface {
	Kind() Kind
	Sender() Sender
	IssuedAt() time.Time
	sealed()
}

// Link asks the scanning device to record a relation with the sender.
type Link struct {
	Type      Kind            `json:"type"`
	Version   string          `json:"version"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Relation  models.Relation `json:"relation"`
	Timestamp int64           `json:"timestamp"`
}

// Progress is the three slot booleans of a single day.
type Progress struct {
	Morning   bool `json:"morning"`
	Afternoon bool `json:"afternoon"`
	Night     bool `json:"night"`
}

// Snapshot shares the sender's activity progress.
type Snapshot struct {
	Type          Kind                 `json:"type"`
	Version       string               `json:"version"`
	UserID        string               `json:"userId"`
	UserName      string               `json:"userName"`
	TodayProgress Progress             `json:"todayProgress"`
	CurrentRole   models.Role          `json:"currentRole"`
	Recent        []models.DayProgress `json:"recent,omitempty"`
	Timestamp     int64                `json:"timestamp"`
}

func (l *Link) Kind() Kind          { return KindLink }
func (l *Link) Sender() Sender      { return Sender{UserID: l.UserID, UserName: l.UserName} }
func (l *Link) IssuedAt() time.Time { return time.UnixMilli(l.Timestamp) }
func (*Link) sealed()               {}

func (s *Snapshot) Kind() Kind          { return KindSnapshot }
func (s *Snapshot) Sender() Sender      { return Sender{UserID: s.UserID, UserName: s.UserName} }
func (s *Snapshot) IssuedAt() time.Time { return time.UnixMilli(s.Timestamp) }
func (*Snapshot) sealed()               {}

// Match dispatches m to the handler for its kind. Every caller handles every kind,
// so adding a kind changes this signature and breaks each call site until handled.
func Match[T any](m Message, onLink func(*Link) T, onSnapshot func(*Snapshot) T) T {
	switch v := m.(type) {
	case *Link:
		return onLink(v)
	case *Snapshot:
		return onSnapshot(v)
	}
	var zero T
	return zero
}

func userName(p *models.UserProfile) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return AnonymousName
}

// NewLink builds a link message for profile p offering relation rel.
func NewLink(p *models.UserProfile, rel models.Relation, now time.Time) (*Link, error) {
	if p == nil || p.ID == "" {
		return nil, errors.New("profile not initialized")
	}
	if !rel.Valid() {
		return nil, fmt.Errorf("unknown relation %q", string(rel))
	}
	return &Link{
		Type:      KindLink,
		Version:   Version,
		UserID:    p.ID,
		UserName:  userName(p),
		Relation:  rel,
		Timestamp: now.UnixMilli(),
	}, nil
}

// NewSnapshot builds a snapshot message from the profile and today's record.
// recent is sorted by date and trimmed to the last MaxRecentDays entries.
func NewSnapshot(p *models.UserProfile, today models.DailyActivity, recent []models.DayProgress, now time.Time) (*Snapshot, error) {
	if p == nil || p.ID == "" {
		return nil, errors.New("profile not initialized")
	}
	if !p.CurrentRole.Valid() {
		return nil, fmt.Errorf("unknown role %q", string(p.CurrentRole))
	}

	var days []models.DayProgress
	if len(recent) > 0 {
		days = append(days, recent...)
		sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
		if len(days) > MaxRecentDays {
			days = days[len(days)-MaxRecentDays:]
		}
	}

	return &Snapshot{
		Type:     KindSnapshot,
		Version:  Version,
		UserID:   p.ID,
		UserName: userName(p),
		TodayProgress: Progress{
			Morning:   today.Completed(models.SlotMorning),
			Afternoon: today.Completed(models.SlotAfternoon),
			Night:     today.Completed(models.SlotNight),
		},
		CurrentRole: p.CurrentRole,
		Recent:      days,
		Timestamp:   now.UnixMilli(),
	}, nil
}
