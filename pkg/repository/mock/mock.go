package mock

import (
	"context"

	"github.com/garnizeh/triad/pkg/models"
)

// Test helpers and mocks
type Mocks struct {
	ProfRepo    *mockProfileRepo
	ContactRepo *mockContactRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		ProfRepo:    &mockProfileRepo{},
		ContactRepo: &mockContactRepo{Stored: map[string]models.Contact{}},
	}
}

type mockProfileRepo struct {
	Stored *models.UserProfile
	Err    error
}

func (m *mockProfileRepo) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Stored, nil
}

func (m *mockProfileRepo) SetProfile(ctx context.Context, p *models.UserProfile) error {
	if m.Err != nil {
		return m.Err
	}
	m.Stored = p
	return nil
}

func (m *mockProfileRepo) CreateProfileIfAbsent(ctx context.Context, displayName string, role models.Role) (*models.UserProfile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Stored == nil {
		m.Stored = &models.UserProfile{ID: "p1", DisplayName: displayName, CurrentRole: role}
	}
	return m.Stored, nil
}

func (m *mockProfileRepo) UpdateRole(ctx context.Context, role models.Role) (*models.UserProfile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Stored.CurrentRole = role
	return m.Stored, nil
}

func (m *mockProfileRepo) UpdateDisplayName(ctx context.Context, name string) (*models.UserProfile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Stored.DisplayName = name
	return m.Stored, nil
}

type mockContactRepo struct {
	Stored map[string]models.Contact
	Err    error
}

func (m *mockContactRepo) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if c, ok := m.Stored[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *mockContactRepo) ListContacts(ctx context.Context) (map[string]models.Contact, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Stored, nil
}

func (m *mockContactRepo) SetContact(ctx context.Context, c *models.Contact) error {
	if m.Err != nil {
		return m.Err
	}
	m.Stored[c.ID] = *c
	return nil
}

func (m *mockContactRepo) DeleteContact(ctx context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	delete(m.Stored, id)
	return nil
}
