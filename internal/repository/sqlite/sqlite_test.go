package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	dbfs "github.com/garnizeh/triad/db"
	dbpkg "github.com/garnizeh/triad/internal/db"
	sqlite "github.com/garnizeh/triad/internal/repository/sqlite"
	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

func setupRepo(t *testing.T) (*sqlite.SQLiteRepo, func()) {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		d.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	return repo, func() { d.Close() }
}

func TestStore_GetPutDeleteIterateClear(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	var v map[string]int
	found, err := repo.Get(ctx, repository.CollectionSettings, "missing", &v)
	if err != nil {
		t.Fatalf("Get missing returned error: %v", err)
	}
	if found {
		t.Fatalf("expected missing key not found")
	}

	if err := repo.Put(ctx, repository.CollectionContacts, "b", map[string]int{"n": 2}); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if err := repo.Put(ctx, repository.CollectionContacts, "a", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := repo.Put(ctx, repository.CollectionContacts, "a", map[string]int{"n": 3}); err != nil {
		t.Fatalf("Put a overwrite: %v", err)
	}

	found, err = repo.Get(ctx, repository.CollectionContacts, "a", &v)
	if err != nil || !found {
		t.Fatalf("Get a: found=%v err=%v", found, err)
	}
	if v["n"] != 3 {
		t.Fatalf("expected overwritten value 3, got %v", v)
	}

	entries, err := repo.Iterate(ctx, repository.CollectionContacts)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Key != "b" {
		t.Fatalf("unexpected entries %#v", entries)
	}

	if err := repo.Delete(ctx, repository.CollectionContacts, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	found, _ = repo.Get(ctx, repository.CollectionContacts, "a", &v)
	if found {
		t.Fatalf("expected a deleted")
	}

	if err := repo.Clear(ctx, repository.CollectionContacts); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, _ = repo.Iterate(ctx, repository.CollectionContacts)
	if len(entries) != 0 {
		t.Fatalf("expected empty collection after clear, got %d", len(entries))
	}
}

func TestStore_RejectsUnknownCollectionAndEmptyKey(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.Put(ctx, repository.Collection("users; DROP TABLE profile"), "k", 1); !errors.Is(err, repository.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
	if err := repo.Put(ctx, repository.CollectionSettings, "  ", 1); !errors.Is(err, repository.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestProfile_CreateIfAbsentIsIdempotent(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	got, err := repo.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no profile before init, got %#v", got)
	}

	first, err := repo.CreateProfileIfAbsent(ctx, "Alex", models.RoleMentee)
	if err != nil {
		t.Fatalf("CreateProfileIfAbsent: %v", err)
	}
	if first.ID == "" || first.CreatedAt == 0 {
		t.Fatalf("expected id and createdAt set: %#v", first)
	}

	second, err := repo.CreateProfileIfAbsent(ctx, "Other", models.RoleSteward)
	if err != nil {
		t.Fatalf("second CreateProfileIfAbsent: %v", err)
	}
	if second.ID != first.ID || second.CurrentRole != models.RoleMentee || second.DisplayName != "Alex" {
		t.Fatalf("expected existing profile returned, got %#v", second)
	}

	if _, err := repo.CreateProfileIfAbsent(ctx, "", models.Role("KING")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestProfile_ConcurrentStartupCreatesOne(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.CreateProfileIfAbsent(ctx, "", models.RoleMentee)
			if err != nil {
				t.Errorf("CreateProfileIfAbsent: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected a single profile, got ids %v", ids)
		}
	}
}

func TestProfile_Updates(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.UpdateRole(ctx, models.RoleMentor); !errors.Is(err, sqlite.ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}

	if _, err := repo.CreateProfileIfAbsent(ctx, "", models.RoleMentee); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err := repo.UpdateRole(ctx, models.RoleMentor)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if p.CurrentRole != models.RoleMentor {
		t.Fatalf("expected MENTOR got %s", p.CurrentRole)
	}
	if _, err := repo.UpdateRole(ctx, models.Role("nope")); err == nil {
		t.Fatalf("expected error for unknown role")
	}

	p, err = repo.UpdateDisplayName(ctx, "Sam")
	if err != nil {
		t.Fatalf("UpdateDisplayName: %v", err)
	}
	stored, _ := repo.GetProfile(ctx)
	if stored.DisplayName != "Sam" || stored.CurrentRole != models.RoleMentor || stored.ID != p.ID {
		t.Fatalf("unexpected stored profile %#v", stored)
	}
}

func TestContacts_CRUD(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.SetContact(ctx, nil); err == nil {
		t.Fatalf("expected error for nil contact")
	}
	if err := repo.SetContact(ctx, &models.Contact{ID: "x", Relation: "myBoss"}); !errors.Is(err, repository.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for unknown relation, got %v", err)
	}

	c := &models.Contact{ID: "u1", Label: "Alex", Relation: models.RelationMyMentor}
	if err := repo.SetContact(ctx, c); err != nil {
		t.Fatalf("SetContact: %v", err)
	}
	got, err := repo.GetContact(ctx, "u1")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("expected %#v got %#v", c, got)
	}

	all, err := repo.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(all) != 1 || all["u1"].Relation != models.RelationMyMentor {
		t.Fatalf("unexpected contacts %#v", all)
	}

	if err := repo.DeleteContact(ctx, "u1"); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}
	got, err = repo.GetContact(ctx, "u1")
	if err != nil || got != nil {
		t.Fatalf("expected nil after delete, got %#v err=%v", got, err)
	}
}

func TestActivity_MarkSlotComplete(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	fixed := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return fixed })

	a, err := repo.MarkSlotComplete(ctx, "2025-03-01", models.SlotMorning)
	if err != nil {
		t.Fatalf("MarkSlotComplete: %v", err)
	}
	if a.Morning == nil || *a.Morning != fixed.UnixMilli() {
		t.Fatalf("expected morning stamped with clock, got %#v", a)
	}

	if _, err := repo.MarkSlotComplete(ctx, "2025-03-01", models.SlotNight); err != nil {
		t.Fatalf("MarkSlotComplete night: %v", err)
	}
	day, err := repo.GetDay(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if !day.Completed(models.SlotMorning) || !day.Completed(models.SlotNight) || day.Completed(models.SlotAfternoon) {
		t.Fatalf("expected merge of both slots, got %#v", day)
	}
}

func TestActivity_DoubleToggleRestoresState(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	for _, date := range []string{"2025-03-02", "2025-03-03"} {
		if date == "2025-03-03" {
			if _, err := repo.MarkSlotComplete(ctx, date, models.SlotAfternoon); err != nil {
				t.Fatalf("seed afternoon: %v", err)
			}
		}

		before, err := repo.GetDay(ctx, date)
		if err != nil {
			t.Fatalf("GetDay before: %v", err)
		}

		first, err := repo.ToggleSlot(ctx, date, models.SlotMorning)
		if err != nil {
			t.Fatalf("first toggle: %v", err)
		}
		if !first.Completed(models.SlotMorning) {
			t.Fatalf("expected morning set after first toggle")
		}
		if _, err := repo.ToggleSlot(ctx, date, models.SlotMorning); err != nil {
			t.Fatalf("second toggle: %v", err)
		}

		after, err := repo.GetDay(ctx, date)
		if err != nil {
			t.Fatalf("GetDay after: %v", err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("%s: expected %#v after double toggle, got %#v", date, before, after)
		}
	}
}

func TestActivity_LongSlotNamesAreNormalized(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	a, err := repo.MarkSlotComplete(ctx, "2025-01-02", models.Slot("morning"))
	if err != nil {
		t.Fatalf("MarkSlotComplete: %v", err)
	}
	if !a.Completed(models.SlotMorning) {
		t.Fatalf("expected morning set, got %#v", a)
	}

	a, err = repo.ToggleSlot(ctx, "2025-01-02", models.Slot("night"))
	if err != nil {
		t.Fatalf("ToggleSlot: %v", err)
	}
	if !a.Completed(models.SlotNight) {
		t.Fatalf("expected night set, got %#v", a)
	}

	day, err := repo.GetDay(ctx, "2025-01-02")
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if !day.Completed(models.SlotMorning) || !day.Completed(models.SlotNight) || day.Completed(models.SlotAfternoon) {
		t.Fatalf("unexpected stored day %#v", day)
	}
}

func TestActivity_RejectsNonCanonicalDate(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	for _, d := range []string{"2025-3-1", "03/01/2025", "2025-03-01T00:00:00Z", ""} {
		if _, err := repo.ToggleSlot(ctx, d, models.SlotMorning); !errors.Is(err, repository.ErrInvalidKey) {
			t.Fatalf("%q: expected ErrInvalidKey, got %v", d, err)
		}
	}
	if _, err := repo.ToggleSlot(ctx, "2025-03-01", models.Slot("X")); !errors.Is(err, repository.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for unknown slot, got %v", err)
	}
}

func TestSnapshots_Overwrite(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	role := models.RoleScout
	s1 := &models.ActivitySnapshot{AsOf: 1, Role: &role, Today: &models.DayProgress{Date: "2025-03-01", Morning: true}}
	s2 := &models.ActivitySnapshot{AsOf: 2, Today: &models.DayProgress{Date: "2025-03-02", Night: true}}

	if err := repo.SetSnapshot(ctx, "u1", s1); err != nil {
		t.Fatalf("SetSnapshot 1: %v", err)
	}
	if err := repo.SetSnapshot(ctx, "u1", s2); err != nil {
		t.Fatalf("SetSnapshot 2: %v", err)
	}

	got, err := repo.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, s2) {
		t.Fatalf("expected wholesale overwrite %#v, got %#v", s2, got)
	}

	bad := models.Role("KING")
	if err := repo.SetSnapshot(ctx, "u2", &models.ActivitySnapshot{AsOf: 1, Role: &bad}); err == nil {
		t.Fatalf("expected error writing unknown role")
	}
}

func TestSettings_AndReset(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.SetSetting(ctx, "fontSize", 18); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	var size int
	found, err := repo.GetSetting(ctx, "fontSize", &size)
	if err != nil || !found || size != 18 {
		t.Fatalf("GetSetting: found=%v size=%d err=%v", found, size, err)
	}

	all, err := repo.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if _, ok := all["theme"]; !ok {
		t.Fatalf("expected seeded theme in settings %v", all)
	}

	if _, err := repo.CreateProfileIfAbsent(ctx, "", models.RoleMentee); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := repo.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for _, c := range repository.Collections {
		entries, err := repo.Iterate(ctx, c)
		if err != nil {
			t.Fatalf("Iterate %s: %v", c, err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected %s empty after reset, got %d", c, len(entries))
		}
	}
}

func TestReplaceAll_RollsBackOnFailure(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.SetContact(ctx, &models.Contact{ID: "keep", Relation: models.RelationMyScout}); err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	err := repo.ReplaceAll(ctx, map[repository.Collection][]repository.Entry{
		repository.CollectionContacts: {{Key: "new", Value: []byte(`{"id":"new","relation":"myMentor"}`)}},
		repository.CollectionSettings: {{Key: "broken", Value: []byte(`{not json`)}},
	})
	if err == nil {
		t.Fatalf("expected ReplaceAll to fail on invalid JSON")
	}

	got, err := repo.GetContact(ctx, "keep")
	if err != nil || got == nil {
		t.Fatalf("expected original contact to survive failed replace, got %#v err=%v", got, err)
	}
	if c, _ := repo.GetContact(ctx, "new"); c != nil {
		t.Fatalf("expected partial write rolled back")
	}
}
