package approvals

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/users"
	"github.com/tender-hub/backend/pkg/database"
)

// Store is the persistence the workflow needs outside a transaction.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.ProfileUpdateRequest, int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ProfileUpdateRequest, error)
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the persistence available while a request changes state. The request row, the user
// row, the audit entry and the notification commit together or not at all.
type TxStore interface {
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, name, email string) error

	GetRequest(ctx context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error)
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)
	CreateRequest(ctx context.Context, req *models.ProfileUpdateRequest) error
	CompleteReview(ctx context.Context, req *models.ProfileUpdateRequest) error

	RecordAudit(ctx context.Context, actorID, targetID *uuid.UUID, md audit.Metadata, ip string) error
	Notify(ctx context.Context, intent *models.NotificationIntent) error
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	*Repository
	db database.DB
}

// NewPgStore creates a PostgreSQL-backed store.
func NewPgStore(db database.DB) *PgStore {
	return &PgStore{Repository: NewRepository(db), db: db}
}

// WithTx runs fn in a transaction.
func (s *PgStore) WithTx(ctx context.Context, fn func(tx TxStore) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{
			requests: NewRepository(tx),
			users:    users.NewRepository(tx),
			audit:    audit.NewRepository(tx),
			outbox:   notifications.NewOutboxRepository(tx),
		})
	})
}

type pgTx struct {
	requests *Repository
	users    *users.Repository
	audit    *audit.Repository
	outbox   *notifications.OutboxRepository
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.users.GetByIDForUpdate(ctx, id)
}

func (t *pgTx) EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	return t.users.EmailTaken(ctx, email, exclude)
}

func (t *pgTx) UpdateUserProfile(ctx context.Context, id uuid.UUID, name, email string) error {
	return t.users.UpdateProfile(ctx, id, name, email)
}

func (t *pgTx) GetRequest(ctx context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error) {
	return t.requests.Get(ctx, id)
}

func (t *pgTx) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	return t.requests.HasPending(ctx, userID)
}

func (t *pgTx) CreateRequest(ctx context.Context, req *models.ProfileUpdateRequest) error {
	return t.requests.Create(ctx, req)
}

func (t *pgTx) CompleteReview(ctx context.Context, req *models.ProfileUpdateRequest) error {
	return t.requests.CompleteReview(ctx, req)
}

func (t *pgTx) RecordAudit(ctx context.Context, actorID, targetID *uuid.UUID, md audit.Metadata, ip string) error {
	_, err := t.audit.Record(ctx, actorID, targetID, md, ip)
	return err
}

func (t *pgTx) Notify(ctx context.Context, intent *models.NotificationIntent) error {
	return t.outbox.Enqueue(ctx, intent)
}
