package sqlite

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

func checkDate(date string) error {
	if _, err := models.ParseDateKey(date); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidKey, err)
	}
	return nil
}

// normalizeSlot maps any accepted spelling of a slot to its stored short form.
func normalizeSlot(slot models.Slot) (models.Slot, error) {
	s, err := models.ParseSlot(string(slot))
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrInvalidKey, err)
	}
	return s, nil
}

// GetDay returns the record for date, or a zero record when none exists.
func (r *SQLiteRepo) GetDay(ctx context.Context, date string) (models.DailyActivity, error) {
	if err := checkDate(date); err != nil {
		return models.DailyActivity{}, err
	}
	var a models.DailyActivity
	if _, err := r.Get(ctx, repository.CollectionActivity, date, &a); err != nil {
		return models.DailyActivity{}, err
	}
	return a, nil
}

func (r *SQLiteRepo) ListActivity(ctx context.Context) (map[string]models.DailyActivity, error) {
	entries, err := r.Iterate(ctx, repository.CollectionActivity)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.DailyActivity, len(entries))
	for _, e := range entries {
		var a models.DailyActivity
		if err := json.Unmarshal(e.Value, &a); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", e.Key, err)
		}
		out[e.Key] = a
	}
	return out, nil
}

func (r *SQLiteRepo) SetDay(ctx context.Context, date string, a models.DailyActivity) error {
	if err := checkDate(date); err != nil {
		return err
	}
	return r.Put(ctx, repository.CollectionActivity, date, a)
}

// MarkSlotComplete stamps slot with the current time (last write wins).
func (r *SQLiteRepo) MarkSlotComplete(ctx context.Context, date string, slot models.Slot) (models.DailyActivity, error) {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return models.DailyActivity{}, err
	}
	return r.modifyDay(ctx, date, func(a *models.DailyActivity) {
		a.Set(slot, r.now())
	})
}

// ToggleSlot sets slot when it is empty and clears it otherwise.
func (r *SQLiteRepo) ToggleSlot(ctx context.Context, date string, slot models.Slot) (models.DailyActivity, error) {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return models.DailyActivity{}, err
	}
	return r.modifyDay(ctx, date, func(a *models.DailyActivity) {
		if a.Completed(slot) {
			a.Clear(slot)
			return
		}
		a.Set(slot, r.now())
	})
}

// modifyDay does the read-merge-write of one record inside a transaction so two
// toggles on the same date never act on a stale read.
func (r *SQLiteRepo) modifyDay(ctx context.Context, date string, fn func(a *models.DailyActivity)) (models.DailyActivity, error) {
	if err := checkDate(date); err != nil {
		return models.DailyActivity{}, err
	}

	var out models.DailyActivity
	err := r.inTx(ctx, func(q querier) error {
		var a models.DailyActivity
		if _, err := r.get(ctx, q, repository.CollectionActivity, date, &a); err != nil {
			return err
		}
		fn(&a)
		if err := r.put(ctx, q, repository.CollectionActivity, date, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}
