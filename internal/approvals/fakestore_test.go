package approvals

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/users"
)

type recordedAudit struct {
	actorID  *uuid.UUID
	targetID *uuid.UUID
	md       audit.Metadata
}

// fakeStore is an in-memory Store. WithTx serialises transactions and restores a snapshot when fn fails.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	requests map[uuid.UUID]models.ProfileUpdateRequest
	audits   []recordedAudit
	intents  []models.NotificationIntent
	auditErr error
	// beforeComplete runs inside CompleteReview ahead of the status check.
	beforeComplete func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[uuid.UUID]models.User{},
		requests: map[uuid.UUID]models.ProfileUpdateRequest{},
	}
}

func (s *fakeStore) add(name string, role models.Role) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{
		ID:     uuid.New(),
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		Role:   role,
		Status: models.UserStatusActive,
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) user(id uuid.UUID) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *fakeStore) request(id uuid.UUID) models.ProfileUpdateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// isPending calls the pointer-receiver IsPending on a request copy.
func isPending(r models.ProfileUpdateRequest) bool {
	return r.IsPending()
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s}).GetRequest(context.Background(), id)
}

func (s *fakeStore) ListPending(_ context.Context, limit, offset int) ([]models.ProfileUpdateRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.ProfileUpdateRequest
	for _, r := range s.requests {
		if r.IsPending() {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RequestedAt.Before(all[j].RequestedAt) })
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

func (s *fakeStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.ProfileUpdateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.ProfileUpdateRequest, 0)
	for _, r := range s.requests {
		if r.UserID == userID {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RequestedAt.After(list[j].RequestedAt) })
	return list, nil
}

func (s *fakeStore) WithTx(_ context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usersSnap := make(map[uuid.UUID]models.User, len(s.users))
	for k, v := range s.users {
		usersSnap[k] = v
	}
	requestsSnap := make(map[uuid.UUID]models.ProfileUpdateRequest, len(s.requests))
	for k, v := range s.requests {
		requestsSnap[k] = v
	}
	nAudits, nIntents := len(s.audits), len(s.intents)

	if err := fn(&fakeTx{s}); err != nil {
		s.users, s.requests = usersSnap, requestsSnap
		s.audits, s.intents = s.audits[:nAudits], s.intents[:nIntents]
		return err
	}
	return nil
}

type fakeTx struct{ s *fakeStore }

func (t *fakeTx) GetUserForUpdate(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func (t *fakeTx) EmailTaken(_ context.Context, email string, exclude uuid.UUID) (bool, error) {
	for _, u := range t.s.users {
		if u.ID != exclude && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) UpdateUserProfile(ctx context.Context, id uuid.UUID, name, email string) error {
	u, ok := t.s.users[id]
	if !ok {
		return users.ErrNotFound
	}
	if taken, _ := t.EmailTaken(ctx, email, id); taken {
		return users.ErrEmailTaken
	}
	u.Name, u.Email, u.UpdatedAt = name, email, time.Now().UTC()
	t.s.users[id] = u
	return nil
}

func (t *fakeTx) GetRequest(_ context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *fakeTx) HasPending(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, r := range t.s.requests {
		if r.UserID == userID && r.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) CreateRequest(ctx context.Context, req *models.ProfileUpdateRequest) error {
	if pending, _ := t.HasPending(ctx, req.UserID); pending {
		return ErrPendingExists
	}
	req.ID = uuid.New()
	req.Status = models.RequestStatusPending
	req.RequestedAt = time.Now().UTC()
	t.s.requests[req.ID] = *req
	return nil
}

func (t *fakeTx) CompleteReview(_ context.Context, req *models.ProfileUpdateRequest) error {
	if t.s.beforeComplete != nil {
		t.s.beforeComplete()
	}
	stored, ok := t.s.requests[req.ID]
	if !ok || !stored.IsPending() {
		return ErrAlreadyReviewed
	}
	t.s.requests[req.ID] = *req
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
