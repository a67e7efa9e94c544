package sqlite

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

func (r *SQLiteRepo) GetSnapshot(ctx context.Context, contactID string) (*models.ActivitySnapshot, error) {
	var s models.ActivitySnapshot
	found, err := r.Get(ctx, repository.CollectionSnapshots, contactID, &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListSnapshots(ctx context.Context) (map[string]models.ActivitySnapshot, error) {
	entries, err := r.Iterate(ctx, repository.CollectionSnapshots)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.ActivitySnapshot, len(entries))
	for _, e := range entries {
		var s models.ActivitySnapshot
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", e.Key, err)
		}
		out[e.Key] = s
	}
	return out, nil
}

// SetSnapshot overwrites the snapshot kept for contactID.
func (r *SQLiteRepo) SetSnapshot(ctx context.Context, contactID string, s *models.ActivitySnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	return r.Put(ctx, repository.CollectionSnapshots, contactID, s)
}
