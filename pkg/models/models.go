package models

import (
	"fmt"
	"time"
)

// Domain models persisted by the store. JSON names match the backup document format.

// Role is the user's current stage. It is a closed set.
type Role string

const (
	RolePreScout Role = "PRE_SCOUT"
	RoleScout    Role = "SCOUT"
	RoleMentee   Role = "MENTEE"
	RoleMentor   Role = "MENTOR"
	RoleSteward  Role = "STEWARD"
)

// Roles lists every valid role in progression order.
var Roles = []Role{RolePreScout, RoleScout, RoleMentee, RoleMentor, RoleSteward}

func (r Role) Valid() bool {
	switch r {
	case RolePreScout, RoleScout, RoleMentee, RoleMentor, RoleSteward:
		return true
	}
	return false
}

// DisplayName returns the human-readable label for r.
func (r Role) DisplayName() string {
	switch r {
	case RolePreScout:
		return "Pre-Scout"
	case RoleScout:
		return "Scout"
	case RoleMentee:
		return "Mentee"
	case RoleMentor:
		return "Mentor"
	case RoleSteward:
		return "Steward"
	}
	return string(r)
}

func (r *Role) UnmarshalText(b []byte) error {
	v := Role(b)
	if !v.Valid() {
		return fmt.Errorf("unknown role %q", string(b))
	}
	*r = v
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown role %q", string(r))
	}
	return []byte(r), nil
}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	var r Role
	if err := r.UnmarshalText([]byte(s)); err != nil {
		return "", err
	}
	return r, nil
}

// Relation is how a contact relates to the local user. It is a closed set.
type Relation string

const (
	RelationMyMentor   Relation = "myMentor"
	RelationMyMentee   Relation = "myMentee"
	RelationMySteward  Relation = "mySteward"
	RelationMyScout    Relation = "myScout"
	RelationMyPreScout Relation = "myPreScout"
)

// Relations lists every valid relation.
var Relations = []Relation{RelationMyMentor, RelationMyMentee, RelationMySteward, RelationMyScout, RelationMyPreScout}

func (r Relation) Valid() bool {
	switch r {
	case RelationMyMentor, RelationMyMentee, RelationMySteward, RelationMyScout, RelationMyPreScout:
		return true
	}
	return false
}

func (r Relation) DisplayName() string {
	switch r {
	case RelationMyMentor:
		return "My Mentor"
	case RelationMyMentee:
		return "My Mentee"
	case RelationMySteward:
		return "My Steward"
	case RelationMyScout:
		return "My Scout"
	case RelationMyPreScout:
		return "My Pre-Scout"
	}
	return string(r)
}

// Inverse returns the relation the scanning side records for a code generated with r.
// A code generated for "myMentee" is shown by a mentor, so the scanner stores a mentor.
func (r Relation) Inverse() Relation {
	switch r {
	case RelationMyMentor:
		return RelationMyMentee
	case RelationMyMentee:
		return RelationMyMentor
	case RelationMySteward:
		return RelationMyScout
	case RelationMyScout:
		return RelationMySteward
	case RelationMyPreScout:
		return RelationMySteward
	}
	return r
}

func (r *Relation) UnmarshalText(b []byte) error {
	v := Relation(b)
	if !v.Valid() {
		return fmt.Errorf("unknown relation %q", string(b))
	}
	*r = v
	return nil
}

func (r Relation) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown relation %q", string(r))
	}
	return []byte(r), nil
}

// ParseRelation validates s as a Relation.
func ParseRelation(s string) (Relation, error) {
	var r Relation
	if err := r.UnmarshalText([]byte(s)); err != nil {
		return "", err
	}
	return r, nil
}

// Slot is one of the three daily activity slots.
type Slot string

const (
	SlotMorning   Slot = "M"
	SlotAfternoon Slot = "A"
	SlotNight     Slot = "N"
)

// ParseSlot accepts the short form (M/A/N) or the long form (morning/afternoon/night).
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "M", "m", "morning":
		return SlotMorning, nil
	case "A", "a", "afternoon":
		return SlotAfternoon, nil
	case "N", "n", "night":
		return SlotNight, nil
	}
	return "", fmt.Errorf("unknown slot %q", s)
}

type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	CurrentRole Role   `json:"currentRole"`
	CreatedAt   int64  `json:"createdAt"`
}

type Contact struct {
	ID         string   `json:"id"`
	Label      string   `json:"label,omitempty"`
	Relation   Relation `json:"relation"`
	LastSeenAt *int64   `json:"lastSeenAt,omitempty"`
}

// DailyActivity holds completion timestamps (epoch ms) for one calendar date.
type DailyActivity struct {
	Morning   *int64 `json:"M,omitempty"`
	Afternoon *int64 `json:"A,omitempty"`
	Night     *int64 `json:"N,omitempty"`
}

func (d *DailyActivity) slot(s Slot) **int64 {
	switch s {
	case SlotMorning:
		return &d.Morning
	case SlotAfternoon:
		return &d.Afternoon
	case SlotNight:
		return &d.Night
	}
	return nil
}

// Completed reports whether slot s has a completion timestamp.
func (d DailyActivity) Completed(s Slot) bool {
	p := d.slot(s)
	return p != nil && *p != nil
}

// Set records ts as the completion time of s.
func (d *DailyActivity) Set(s Slot, ts int64) {
	if p := d.slot(s); p != nil {
		*p = &ts
	}
}

// Clear removes the completion time of s.
func (d *DailyActivity) Clear(s Slot) {
	if p := d.slot(s); p != nil {
		*p = nil
	}
}

// Progress converts the record into slot booleans for date.
func (d DailyActivity) Progress(date string) DayProgress {
	return DayProgress{
		Date:      date,
		Morning:   d.Morning != nil,
		Afternoon: d.Afternoon != nil,
		Night:     d.Night != nil,
	}
}

// DayProgress is the boolean view of one day's slots.
type DayProgress struct {
	Date      string `json:"date,omitempty"`
	Morning   bool   `json:"morning"`
	Afternoon bool   `json:"afternoon"`
	Night     bool   `json:"night"`
}

// ActivitySnapshot is a peer's progress as received from a scanned code.
type ActivitySnapshot struct {
	AsOf   int64         `json:"asOf"`
	Role   *Role         `json:"role,omitempty"`
	Today  *DayProgress  `json:"today,omitempty"`
	Recent []DayProgress `json:"recent,omitempty"`
}

// DateLayout is the canonical ISO calendar date used as the activity key.
const DateLayout = "2006-01-02"

// DateKey formats t as an activity key in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey accepts only the canonical YYYY-MM-DD form.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if t.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("non-canonical date %q", s)
	}
	return t, nil
}
