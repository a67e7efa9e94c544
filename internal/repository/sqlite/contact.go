package sqlite

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

func (r *SQLiteRepo) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var c models.Contact
	found, err := r.Get(ctx, repository.CollectionContacts, id, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepo) ListContacts(ctx context.Context) (map[string]models.Contact, error) {
	entries, err := r.Iterate(ctx, repository.CollectionContacts)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.Contact, len(entries))
	for _, e := range entries {
		var c models.Contact
		if err := json.Unmarshal(e.Value, &c); err != nil {
			return nil, fmt.Errorf("decode contact %s: %w", e.Key, err)
		}
		out[e.Key] = c
	}
	return out, nil
}

func (r *SQLiteRepo) SetContact(ctx context.Context, c *models.Contact) error {
	if c == nil {
		return fmt.Errorf("contact is nil")
	}
	if !c.Relation.Valid() {
		return fmt.Errorf("%w: relation %q", repository.ErrInvalidValue, string(c.Relation))
	}
	return r.Put(ctx, repository.CollectionContacts, c.ID, c)
}

func (r *SQLiteRepo) DeleteContact(ctx context.Context, id string) error {
	return r.Delete(ctx, repository.CollectionContacts, id)
}
