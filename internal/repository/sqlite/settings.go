package sqlite

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/repository"
)

func (r *SQLiteRepo) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	return r.Get(ctx, repository.CollectionSettings, key, out)
}

func (r *SQLiteRepo) SetSetting(ctx context.Context, key string, v any) error {
	return r.Put(ctx, repository.CollectionSettings, key, v)
}

func (r *SQLiteRepo) ListSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	entries, err := r.Iterate(ctx, repository.CollectionSettings)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}
