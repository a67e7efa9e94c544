// Package backup exports the whole store into one portable document and restores it.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/internal/metrics"
	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

// FormatVersion is the document version written by ExportAll and accepted by ImportAll.
const FormatVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported backup version")
	ErrInvalidDocument    = errors.New("invalid backup document")
)

// Document is the backup file format.
type Document struct {
	Version   int                                `json:"version"`
	Timestamp int64                              `json:"timestamp"`
	Profile   *models.UserProfile                `json:"profile"`
	Contacts  map[string]models.Contact          `json:"contacts"`
	Activity  map[string]models.DailyActivity    `json:"activity"`
	Snapshots map[string]models.ActivitySnapshot `json:"snapshots"`
	Settings  map[string]json.RawMessage         `json:"settings"`
}

// Store is what the codec needs from the persistent store.
type Store interface {
	Iterate(ctx context.Context, c repository.Collection) ([]repository.Entry, error)
	ReplaceAll(ctx context.Context, entries map[repository.Collection][]repository.Entry) error
}

type Codec struct {
	store   Store
	logger  *slog.Logger
	metrics metrics.Recorder
	clock   func() time.Time
}

func New(store Store, logger *slog.Logger, m metrics.Recorder) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Codec{store: store, logger: logger, metrics: m, clock: time.Now}
}

// WithClock replaces the time source for the document timestamp.
func (c *Codec) WithClock(clock func() time.Time) *Codec {
	c.clock = clock
	return c
}

// ExportAll reads every collection into a Document.
func (c *Codec) ExportAll(ctx context.Context) (*Document, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveBackupDuration("export", time.Since(start)) }()

	doc := &Document{
		Version:   FormatVersion,
		Timestamp: c.clock().UnixMilli(),
		Contacts:  map[string]models.Contact{},
		Activity:  map[string]models.DailyActivity{},
		Snapshots: map[string]models.ActivitySnapshot{},
		Settings:  map[string]json.RawMessage{},
	}

	for _, col := range repository.Collections {
		entries, err := c.store.Iterate(ctx, col)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", col, err)
		}
		for _, e := range entries {
			if err := doc.add(col, e); err != nil {
				return nil, fmt.Errorf("export %s/%s: %w", col, e.Key, err)
			}
		}
	}

	c.logger.Info("backup exported",
		"contacts", len(doc.Contacts),
		"activity", len(doc.Activity),
		"snapshots", len(doc.Snapshots),
		"settings", len(doc.Settings),
	)
	return doc, nil
}

func (d *Document) add(col repository.Collection, e repository.Entry) error {
	switch col {
	case repository.CollectionProfile:
		if e.Key != repository.ProfileKey {
			return nil
		}
		var p models.UserProfile
		if err := json.Unmarshal(e.Value, &p); err != nil {
			return err
		}
		d.Profile = &p
	case repository.CollectionContacts:
		var v models.Contact
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return err
		}
		d.Contacts[e.Key] = v
	case repository.CollectionActivity:
		var v models.DailyActivity
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return err
		}
		d.Activity[e.Key] = v
	case repository.CollectionSnapshots:
		var v models.ActivitySnapshot
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return err
		}
		d.Snapshots[e.Key] = v
	case repository.CollectionSettings:
		d.Settings[e.Key] = append(json.RawMessage(nil), e.Value...)
	}
	return nil
}

// Validate checks the document before anything in the store is touched.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	if d.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.Version)
	}
	if p := d.Profile; p != nil {
		if p.ID == "" {
			return fmt.Errorf("%w: profile id is empty", ErrInvalidDocument)
		}
		if !p.CurrentRole.Valid() {
			return fmt.Errorf("%w: profile role %q", ErrInvalidDocument, string(p.CurrentRole))
		}
	}
	for id, ct := range d.Contacts {
		if id == "" {
			return fmt.Errorf("%w: contact with empty id", ErrInvalidDocument)
		}
		if !ct.Relation.Valid() {
			return fmt.Errorf("%w: contact %s relation %q", ErrInvalidDocument, id, string(ct.Relation))
		}
	}
	for date := range d.Activity {
		if _, err := models.ParseDateKey(date); err != nil {
			return fmt.Errorf("%w: activity: %v", ErrInvalidDocument, err)
		}
	}
	for id, s := range d.Snapshots {
		if id == "" {
			return fmt.Errorf("%w: snapshot with empty contact id", ErrInvalidDocument)
		}
		if s.Role != nil && !s.Role.Valid() {
			return fmt.Errorf("%w: snapshot %s role %q", ErrInvalidDocument, id, string(*s.Role))
		}
	}
	for k, v := range d.Settings {
		if k == "" || !json.Valid(v) {
			return fmt.Errorf("%w: setting %q", ErrInvalidDocument, k)
		}
	}
	return nil
}

// ImportAll replaces the whole store with the document's contents. The document is
// validated first, and the replacement is applied by the store as one unit.
func (c *Codec) ImportAll(ctx context.Context, doc *Document) error {
	start := time.Now()
	defer func() { c.metrics.ObserveBackupDuration("import", time.Since(start)) }()

	if err := doc.Validate(); err != nil {
		return err
	}

	entries := map[repository.Collection][]repository.Entry{}
	add := func(col repository.Collection, key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidDocument, col, key, err)
		}
		entries[col] = append(entries[col], repository.Entry{Key: key, Value: b})
		return nil
	}

	if doc.Profile != nil {
		if err := add(repository.CollectionProfile, repository.ProfileKey, doc.Profile); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(doc.Contacts) {
		ct := doc.Contacts[id]
		if ct.ID == "" {
			ct.ID = id
		}
		if err := add(repository.CollectionContacts, id, ct); err != nil {
			return err
		}
	}
	for _, date := range sortedKeys(doc.Activity) {
		if err := add(repository.CollectionActivity, date, doc.Activity[date]); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(doc.Snapshots) {
		if err := add(repository.CollectionSnapshots, id, doc.Snapshots[id]); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(doc.Settings) {
		entries[repository.CollectionSettings] = append(entries[repository.CollectionSettings],
			repository.Entry{Key: k, Value: doc.Settings[k]})
	}

	if err := c.store.ReplaceAll(ctx, entries); err != nil {
		c.logger.Error("backup import failed", "error", err)
		return fmt.Errorf("import: %w", err)
	}

	c.logger.Info("backup imported",
		"contacts", len(doc.Contacts),
		"activity", len(doc.Activity),
		"snapshots", len(doc.Snapshots),
		"settings", len(doc.Settings),
	)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
