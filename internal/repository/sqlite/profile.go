package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

// ErrNoProfile is returned by profile updates before a profile exists.
var ErrNoProfile = repository.ErrNoProfile

func (r *SQLiteRepo) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	return r.getProfile(ctx, r.conn.GetConn())
}

func (r *SQLiteRepo) getProfile(ctx context.Context, q querier) (*models.UserProfile, error) {
	var p models.UserProfile
	found, err := r.get(ctx, q, repository.CollectionProfile, repository.ProfileKey, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (r *SQLiteRepo) SetProfile(ctx context.Context, p *models.UserProfile) error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("%w: profile id is empty", repository.ErrInvalidValue)
	}
	return r.Put(ctx, repository.CollectionProfile, repository.ProfileKey, p)
}

// CreateProfileIfAbsent creates the singleton profile on first launch. It re-checks
// inside one transaction so a duplicated startup call returns the existing profile.
func (r *SQLiteRepo) CreateProfileIfAbsent(ctx context.Context, displayName string, role models.Role) (*models.UserProfile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", repository.ErrInvalidValue, string(role))
	}

	var out *models.UserProfile
	created := false
	err := r.inTx(ctx, func(q querier) error {
		existing, err := r.getProfile(ctx, q)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		p := &models.UserProfile{
			ID:          uuid.NewString(),
			DisplayName: displayName,
			CurrentRole: role,
			CreatedAt:   r.now(),
		}
		if err := r.put(ctx, q, repository.CollectionProfile, repository.ProfileKey, p); err != nil {
			return err
		}
		out = p
		created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if created {
		r.logger.Info("profile created", "id", out.ID, "role", string(out.CurrentRole))
	}
	return out, nil
}

func (r *SQLiteRepo) updateProfile(ctx context.Context, fn func(p *models.UserProfile)) (*models.UserProfile, error) {
	var out *models.UserProfile
	err := r.inTx(ctx, func(q querier) error {
		p, err := r.getProfile(ctx, q)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNoProfile
		}
		fn(p)
		if err := r.put(ctx, q, repository.CollectionProfile, repository.ProfileKey, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (r *SQLiteRepo) UpdateRole(ctx context.Context, role models.Role) (*models.UserProfile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", repository.ErrInvalidValue, string(role))
	}
	return r.updateProfile(ctx, func(p *models.UserProfile) { p.CurrentRole = role })
}

func (r *SQLiteRepo) UpdateDisplayName(ctx context.Context, name string) (*models.UserProfile, error) {
	return r.updateProfile(ctx, func(p *models.UserProfile) { p.DisplayName = name })
}
