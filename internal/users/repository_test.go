package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestCreateMapsEmailUniqueViolation(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(anyArgs(11)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: emailConstraint})

	err := NewRepository(mock).Create(context.Background(), &models.User{Name: "A", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u := &models.User{Name: "A", Email: "a@example.com", Role: models.RoleUser, Status: models.UserStatusActive}
	require.NoError(t, NewRepository(mock).Create(context.Background(), u))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusReportsMissingUser(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectExec(`UPDATE users SET status`).
		WithArgs(id, models.UserStatusSuspended).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewRepository(mock).UpdateStatus(context.Background(), id, models.UserStatusSuspended)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileMapsEmailUniqueViolation(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectExec(`UPDATE users SET name`).
		WithArgs(id, "B", "b@example.com").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: emailConstraint})

	err := NewRepository(mock).UpdateProfile(context.Background(), id, "B", "b@example.com")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := NewRepository(mock).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmailTaken(t *testing.T) {
	mock := newMockPool(t)
	exclude := uuid.New()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a@example.com", exclude).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := NewRepository(mock).EmailTaken(context.Background(), "a@example.com", exclude)
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAdminsLocksBeforeCounting(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(adminLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER \(WHERE status = 'active'\), COUNT\(\*\) FROM users WHERE role = 'admin'`).
		WillReturnRows(pgxmock.NewRows([]string{"active", "total"}).AddRow(1, 2))

	c, err := NewRepository(mock).CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AdminCount{Active: 1, Total: 2}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAdminsFailsWhenLockFails(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(adminLockKey).
		WillReturnError(errors.New("canceling statement due to lock timeout"))

	_, err := NewRepository(mock).CountAdmins(context.Background())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreHoldsAdminLockUntilDeleteCommits(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(adminLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"active", "total"}).AddRow(2, 2))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := NewPgStore(mock).WithTx(context.Background(), func(tx TxStore) error {
		c, err := tx.CountAdmins(context.Background())
		if err != nil {
			return err
		}
		if c.Total < 2 {
			return errors.New("last admin")
		}
		return tx.Delete(context.Background(), id)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInvitationAcceptedTwice(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE invitations SET accepted_at`).
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewRepository(mock).MarkInvitationAccepted(context.Background(), id, at)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestPgStoreWritesAuditAndOutboxInSameTransaction(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET status`).
		WithArgs(id, models.UserStatusSuspended).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notification_outbox`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := NewPgStore(mock).WithTx(context.Background(), func(tx TxStore) error {
		if err := tx.UpdateStatus(context.Background(), id, models.UserStatusSuspended); err != nil {
			return err
		}
		if err := tx.RecordAudit(context.Background(), nil, &id, audit.UserSuspended{PreviousStatus: "active"}, ""); err != nil {
			return err
		}
		return tx.Notify(context.Background(), notifications.NewIntent(models.TemplateAccountSuspended, "a@example.com", map[string]string{"name": "A"}))
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreRollsBackWhenAuditFails(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET role`).
		WithArgs(id, models.RoleManager).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(anyArgs(7)...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewPgStore(mock).WithTx(context.Background(), func(tx TxStore) error {
		if err := tx.UpdateRole(context.Background(), id, models.RoleManager); err != nil {
			return err
		}
		return tx.RecordAudit(context.Background(), nil, &id, audit.UserRoleChanged{PreviousRole: "user", NewRole: "manager"}, "")
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
