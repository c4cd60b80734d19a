package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
)

type recordedAudit struct {
	actorID  *uuid.UUID
	targetID *uuid.UUID
	md       audit.Metadata
}

// fakeStore is an in-memory Store. WithTx serialises transactions and restores a snapshot when fn fails.
type fakeStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]models.User
	invitations map[uuid.UUID]models.Invitation
	audits      []recordedAudit
	intents     []models.NotificationIntent
	auditErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[uuid.UUID]models.User{},
		invitations: map[uuid.UUID]models.Invitation{},
	}
}

func (s *fakeStore) add(name string, role models.Role, status models.UserStatus) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{
		ID:     uuid.New(),
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		Role:   role,
		Status: status,
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) user(id uuid.UUID) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s}).get(id)
}

func (s *fakeStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s}).GetByEmail(ctx, email)
}

func (s *fakeStore) List(_ context.Context, f ListFilter, limit, offset int) ([]models.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.User
	for _, u := range s.users {
		if (f.Role == "" || u.Role == f.Role) && (f.Status == "" || u.Status == f.Status) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *fakeStore) WithTx(_ context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[uuid.UUID]models.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	invitations := make(map[uuid.UUID]models.Invitation, len(s.invitations))
	for k, v := range s.invitations {
		invitations[k] = v
	}
	nAudits, nIntents := len(s.audits), len(s.intents)

	if err := fn(&fakeTx{s}); err != nil {
		s.users, s.invitations = users, invitations
		s.audits, s.intents = s.audits[:nAudits], s.intents[:nIntents]
		return err
	}
	return nil
}

type fakeTx struct{ s *fakeStore }

func (t *fakeTx) get(id uuid.UUID) (*models.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *fakeTx) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*models.User, error) {
	return t.get(id)
}

func (t *fakeTx) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range t.s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *fakeTx) Create(ctx context.Context, u *models.User) error {
	if _, err := t.GetByEmail(ctx, u.Email); err == nil {
		return ErrEmailTaken
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	t.s.users[u.ID] = *u
	return nil
}

func (t *fakeTx) UpdateStatus(_ context.Context, id uuid.UUID, status models.UserStatus) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	t.s.users[id] = u
	return nil
}

func (t *fakeTx) UpdateRole(_ context.Context, id uuid.UUID, role models.Role) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	t.s.users[id] = u
	return nil
}

func (t *fakeTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.users, id)
	return nil
}

func (t *fakeTx) CountAdmins(context.Context) (AdminCount, error) {
	var c AdminCount
	for _, u := range t.s.users {
		if u.Role != models.RoleAdmin {
			continue
		}
		c.Total++
		if u.Status == models.UserStatusActive {
			c.Active++
		}
	}
	return c, nil
}

func (t *fakeTx) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	for id, existing := range t.s.invitations {
		if strings.EqualFold(existing.Email, inv.Email) && existing.AcceptedAt == nil {
			delete(t.s.invitations, id)
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().UTC()
	t.s.invitations[inv.ID] = *inv
	return nil
}

func (t *fakeTx) GetInvitationByTokenHashForUpdate(_ context.Context, tokenHash string) (*models.Invitation, error) {
	for _, inv := range t.s.invitations {
		if inv.TokenHash == tokenHash {
			inv := inv
			return &inv, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (t *fakeTx) MarkInvitationAccepted(_ context.Context, id uuid.UUID, at time.Time) error {
	inv, ok := t.s.invitations[id]
	if !ok || inv.AcceptedAt != nil {
		return ErrInvitationNotFound
	}
	inv.AcceptedAt = &at
	t.s.invitations[id] = inv
	return nil
}

func (t *fakeTx) RecordAudit(_ context.Context, actorID, targetID *uuid.UUID, md audit.Metadata, _ string) error {
	if t.s.auditErr != nil {
		return t.s.auditErr
	}
	t.s.audits = append(t.s.audits, recordedAudit{actorID: actorID, targetID: targetID, md: md})
	return nil
}

func (t *fakeTx) Notify(_ context.Context, intent *models.NotificationIntent) error {
	t.s.intents = append(t.s.intents, *intent)
	return nil
}
