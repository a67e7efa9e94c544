package exchange_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	dbfs "github.com/garnizeh/triad/db"
	"github.com/garnizeh/triad/internal/cache"
	dbpkg "github.com/garnizeh/triad/internal/db"
	"github.com/garnizeh/triad/internal/exchange"
	"github.com/garnizeh/triad/internal/processor"
	"github.com/garnizeh/triad/internal/qrcode"
	sqlite "github.com/garnizeh/triad/internal/repository/sqlite"
	"github.com/garnizeh/triad/pkg/models"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type device struct {
	repo  *sqlite.SQLiteRepo
	svc   *exchange.Service
	clock time.Time
}

func newDevice(t *testing.T, name string, role models.Role, codes cache.Codes) *device {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), name+".db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dev := &device{clock: t0}
	dev.repo = sqlite.New(d, nil).WithClock(func() time.Time { return dev.clock })
	if name != "" {
		if _, err := dev.repo.CreateProfileIfAbsent(ctx, name, role); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}

	r, err := qrcode.NewRenderer(qrcode.DefaultWidth, qrcode.DefaultLinkColor, qrcode.DefaultSnapshotColor)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	dev.svc = exchange.New(dev.repo, r, processor.New(0), codes, nil, nil).
		WithClock(func() time.Time { return dev.clock })
	return dev
}

// scan reads the rendered PNG back the way a camera frame would be decoded.
func scan(t *testing.T, code *qrcode.Code) string {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(code.PNG))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	text, ok := qrcode.Decode(img)
	if !ok {
		t.Fatalf("rendered code did not decode")
	}
	return text
}

func TestLinkFlowBetweenDevices(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "Alex", models.RoleMentor, nil)
	b := newDevice(t, "Blake", models.RoleMentee, nil)

	code, err := a.svc.LinkCode(ctx, models.RelationMyMentee)
	if err != nil {
		t.Fatalf("LinkCode: %v", err)
	}
	text := scan(t, code)
	profileA, _ := a.repo.GetProfile(ctx)

	// Plain processing never creates a contact.
	b.clock = t0.Add(60 * time.Second)
	res, err := b.svc.ProcessText(ctx, text)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if !res.Accepted || res.Link == nil || res.Link.UserName != "Alex" || res.Link.Relation != models.RelationMyMentee {
		t.Fatalf("unexpected result %#v", res)
	}
	if contacts, _ := b.repo.ListContacts(ctx); len(contacts) != 0 {
		t.Fatalf("processing must not create contacts, got %v", contacts)
	}

	c, res, err := b.svc.AcceptLink(ctx, text)
	if err != nil {
		t.Fatalf("AcceptLink: %v", err)
	}
	if c == nil || !res.Accepted {
		t.Fatalf("expected contact, got %#v", res)
	}
	if c.ID != profileA.ID || c.Label != "Alex" || c.Relation != models.RelationMyMentor {
		t.Fatalf("unexpected contact %#v", c)
	}
	stored, _ := b.repo.GetContact(ctx, profileA.ID)
	if stored == nil || stored.LastSeenAt == nil || *stored.LastSeenAt != b.clock.UnixMilli() {
		t.Fatalf("unexpected stored contact %#v", stored)
	}
}

func TestExpiredLinkIsNotAccepted(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "Alex", models.RoleMentor, nil)
	b := newDevice(t, "Blake", models.RoleMentee, nil)

	code, err := a.svc.LinkCode(ctx, models.RelationMyMentee)
	if err != nil {
		t.Fatalf("LinkCode: %v", err)
	}

	b.clock = t0.Add(400 * time.Second)
	c, res, err := b.svc.AcceptLink(ctx, code.Text)
	if err != nil {
		t.Fatalf("AcceptLink: %v", err)
	}
	if c != nil || res.Reason != processor.ReasonExpired {
		t.Fatalf("expected expiry, got contact=%v result=%#v", c, res)
	}
	if contacts, _ := b.repo.ListContacts(ctx); len(contacts) != 0 {
		t.Fatalf("expired link must not create contacts")
	}
}

func TestSnapshotFlowStoresAndTouchesContact(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "Alex", models.RoleMentor, nil)
	b := newDevice(t, "Blake", models.RoleMentee, nil)
	profileA, _ := a.repo.GetProfile(ctx)

	if err := b.repo.SetContact(ctx, &models.Contact{ID: profileA.ID, Relation: models.RelationMyMentor}); err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	if _, err := a.repo.MarkSlotComplete(ctx, models.DateKey(t0), models.SlotMorning); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := a.repo.MarkSlotComplete(ctx, models.DateKey(t0.AddDate(0, 0, -1)), models.SlotNight); err != nil {
		t.Fatalf("mark yesterday: %v", err)
	}

	today, err := a.svc.Today(ctx)
	if err != nil || !today.Morning || today.Afternoon {
		t.Fatalf("Today: %#v %v", today, err)
	}

	code, err := a.svc.SnapshotCode(ctx)
	if err != nil {
		t.Fatalf("SnapshotCode: %v", err)
	}

	b.clock = t0.Add(2 * time.Hour)
	res, err := b.svc.ProcessText(ctx, scan(t, code))
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if res.Summary != "Morning ✓, Afternoon ✗, Night ✗" {
		t.Fatalf("unexpected summary %q", res.Summary)
	}

	snap, err := b.repo.GetSnapshot(ctx, profileA.ID)
	if err != nil || snap == nil {
		t.Fatalf("expected stored snapshot, got %v %v", snap, err)
	}
	if snap.AsOf != t0.UnixMilli() || len(snap.Recent) != 2 || !snap.Recent[0].Night {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	c, _ := b.repo.GetContact(ctx, profileA.ID)
	if c.LastSeenAt == nil || *c.LastSeenAt != b.clock.UnixMilli() {
		t.Fatalf("expected lastSeenAt updated, got %#v", c)
	}
}

func TestMalformedTextMutatesNothing(t *testing.T) {
	ctx := context.Background()
	b := newDevice(t, "Blake", models.RoleMentee, nil)

	for _, text := range []string{"not json", `{"type":"triad-link","version":"1.0","userName":"A","relation":"myMentor","timestamp":1}`} {
		res, err := b.svc.ProcessText(ctx, text)
		if err != nil {
			t.Fatalf("ProcessText: %v", err)
		}
		if res.Accepted || res.Message != processor.MessageInvalid {
			t.Fatalf("expected invalid code, got %#v", res)
		}
		c, res, err := b.svc.AcceptLink(ctx, text)
		if err != nil || c != nil || res.Accepted {
			t.Fatalf("AcceptLink should reject: %v %#v %v", c, res, err)
		}
	}
	if snaps, _ := b.repo.ListSnapshots(ctx); len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %v", snaps)
	}
	if contacts, _ := b.repo.ListContacts(ctx); len(contacts) != 0 {
		t.Fatalf("expected no contacts, got %v", contacts)
	}
}

func TestCodesRequireProfile(t *testing.T) {
	dev := newDevice(t, "", "", nil)
	if _, err := dev.svc.LinkCode(context.Background(), models.RelationMyMentor); !errors.Is(err, exchange.ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
	if _, err := dev.svc.SnapshotCode(context.Background()); !errors.Is(err, exchange.ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

func TestRenderedCodesAreCachedUntilContentChanges(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "Alex", models.RoleMentor, cache.New(1, 30*time.Second, nil))

	first, err := a.svc.LinkCode(ctx, models.RelationMyMentee)
	if err != nil {
		t.Fatalf("LinkCode: %v", err)
	}
	a.clock = t0.Add(5 * time.Second)
	second, err := a.svc.LinkCode(ctx, models.RelationMyMentee)
	if err != nil {
		t.Fatalf("LinkCode: %v", err)
	}
	if second.Text != first.Text {
		t.Fatalf("expected cached code reused")
	}

	other, err := a.svc.LinkCode(ctx, models.RelationMyScout)
	if err != nil {
		t.Fatalf("LinkCode: %v", err)
	}
	if other.Text == first.Text {
		t.Fatalf("different relation must render a new code")
	}
}
