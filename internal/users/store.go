package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/pkg/database"
)

// Store is the persistence the service needs outside a transaction.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]models.User, int, error)
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the persistence available inside a transaction. Audit entries and notifications
// written through it commit or roll back with the change they describe.
type TxStore interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountAdmins(ctx context.Context) (AdminCount, error)

	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitationByTokenHashForUpdate(ctx context.Context, tokenHash string) (*models.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id uuid.UUID, at time.Time) error

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
		return fn(newPgTx(tx))
	})
}

type pgTx struct {
	*Repository
	audit  *audit.Repository
	outbox *notifications.OutboxRepository
}

func newPgTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		Repository: NewRepository(tx),
		audit:      audit.NewRepository(tx),
		outbox:     notifications.NewOutboxRepository(tx),
	}
}

func (t *pgTx) RecordAudit(ctx context.Context, actorID, targetID *uuid.UUID, md audit.Metadata, ip string) error {
	_, err := t.audit.Record(ctx, actorID, targetID, md, ip)
	return err
}

func (t *pgTx) Notify(ctx context.Context, intent *models.NotificationIntent) error {
	return t.outbox.Enqueue(ctx, intent)
}
