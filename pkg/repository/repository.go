package repository

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/models"
)

// Repository interfaces for the device-local store. These are the public contracts
// consumers should depend on; the SQLite implementation lives under internal/.

// Collection names one of the five logical key/value collections.
type Collection string

const (
	CollectionProfile   Collection = "profile"
	CollectionContacts  Collection = "contacts"
	CollectionActivity  Collection = "activity"
	CollectionSnapshots Collection = "snapshots"
	CollectionSettings  Collection = "settings"
)

// Collections lists every collection in a stable order.
var Collections = []Collection{
	CollectionProfile,
	CollectionContacts,
	CollectionActivity,
	CollectionSnapshots,
	CollectionSettings,
}

func (c Collection) Valid() bool {
	switch c {
	case CollectionProfile, CollectionContacts, CollectionActivity, CollectionSnapshots, CollectionSettings:
		return true
	}
	return false
}

// ProfileKey is the only key used in the profile collection.
const ProfileKey = "current"

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidKey        = errors.New("invalid key")
	ErrInvalidValue      = errors.New("invalid value")
	ErrNoProfile         = errors.New("profile not initialized")
)

// Entry is one key/value pair of a collection. Value is the stored JSON document.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Store is the generic collection contract every typed repository is built on.
type Store interface {
	Get(ctx context.Context, c Collection, key string, out any) (bool, error)
	Put(ctx context.Context, c Collection, key string, v any) error
	Delete(ctx context.Context, c Collection, key string) error
	Iterate(ctx context.Context, c Collection) ([]Entry, error)
	Clear(ctx context.Context, c Collection) error
}

type ProfileRepo interface {
	GetProfile(ctx context.Context) (*models.UserProfile, error)
	SetProfile(ctx context.Context, p *models.UserProfile) error
	CreateProfileIfAbsent(ctx context.Context, displayName string, role models.Role) (*models.UserProfile, error)
	UpdateRole(ctx context.Context, role models.Role) (*models.UserProfile, error)
	UpdateDisplayName(ctx context.Context, name string) (*models.UserProfile, error)
}

type ContactRepo interface {
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	ListContacts(ctx context.Context) (map[string]models.Contact, error)
	SetContact(ctx context.Context, c *models.Contact) error
	DeleteContact(ctx context.Context, id string) error
}

type ActivityRepo interface {
	GetDay(ctx context.Context, date string) (models.DailyActivity, error)
	ListActivity(ctx context.Context) (map[string]models.DailyActivity, error)
	SetDay(ctx context.Context, date string, a models.DailyActivity) error
	MarkSlotComplete(ctx context.Context, date string, slot models.Slot) (models.DailyActivity, error)
	ToggleSlot(ctx context.Context, date string, slot models.Slot) (models.DailyActivity, error)
}

type SnapshotRepo interface {
	GetSnapshot(ctx context.Context, contactID string) (*models.ActivitySnapshot, error)
	ListSnapshots(ctx context.Context) (map[string]models.ActivitySnapshot, error)
	SetSnapshot(ctx context.Context, contactID string, s *models.ActivitySnapshot) error
}

type SettingsRepo interface {
	GetSetting(ctx context.Context, key string, out any) (bool, error)
	SetSetting(ctx context.Context, key string, v any) error
	ListSettings(ctx context.Context) (map[string]json.RawMessage, error)
}

// Replacer swaps the whole store contents for the given entries.
type Replacer interface {
	ReplaceAll(ctx context.Context, contents map[Collection][]Entry) error
	Reset(ctx context.Context) error
}
