package approvals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-hub/backend/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCreateMapsOnePendingIndex(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	mock.ExpectExec(`INSERT INTO profile_update_requests`).
		WithArgs(pgxmock.AnyArg(), userID, []byte(`{"name":"New"}`), "", models.RequestStatusPending, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: onePendingConstraint})

	req := &models.ProfileUpdateRequest{UserID: userID, RequestedChanges: map[string]string{"name": "New"}}
	err := NewRepository(mock).Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrPendingExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStampsPendingRow(t *testing.T) {
	mock := newMockPool(t)
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO profile_update_requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "new job", models.RequestStatusPending, fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRepository(mock)
	repo.now = func() time.Time { return fixed }
	req := &models.ProfileUpdateRequest{UserID: uuid.New(), RequestedChanges: map[string]string{"email": "a@example.com"}, Reason: "new job"}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Equal(t, fixed, req.RequestedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteReviewIsCompareAndSwap(t *testing.T) {
	mock := newMockPool(t)
	reviewer := uuid.New()
	at := time.Now().UTC()
	reason := "no"
	req := &models.ProfileUpdateRequest{
		ID:              uuid.New(),
		Status:          models.RequestStatusRejected,
		ReviewedBy:      &reviewer,
		ReviewedAt:      &at,
		RejectionReason: &reason,
	}

	mock.ExpectExec(`UPDATE profile_update_requests\s+SET status[\s\S]+WHERE id = \$1 AND status = 'pending'`).
		WithArgs(req.ID, models.RequestStatusRejected, &reviewer, &at, &reason).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE profile_update_requests\s+SET status[\s\S]+WHERE id = \$1 AND status = 'pending'`).
		WithArgs(req.ID, models.RequestStatusRejected, &reviewer, &at, &reason).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepository(mock)
	require.NoError(t, repo.CompleteReview(context.Background(), req))
	assert.ErrorIs(t, repo.CompleteReview(context.Background(), req), ErrAlreadyReviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownRequest(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()
	mock.ExpectQuery(`FROM profile_update_requests WHERE id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := NewRepository(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasPendingAndCount(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM profile_update_requests WHERE status = 'pending'`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	repo := NewRepository(mock)
	pending, err := repo.HasPending(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, pending)

	n, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreApprovalTransaction(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE profile_update_requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET name`).
		WithArgs(userID, "New Name", "new@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := NewPgStore(mock).WithTx(context.Background(), func(tx TxStore) error {
		if err := tx.CompleteReview(context.Background(), &models.ProfileUpdateRequest{ID: uuid.New(), Status: models.RequestStatusApproved}); err != nil {
			return err
		}
		return tx.UpdateUserProfile(context.Background(), userID, "New Name", "new@example.com")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreRollsBackLostRace(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE profile_update_requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := NewPgStore(mock).WithTx(context.Background(), func(tx TxStore) error {
		return tx.CompleteReview(context.Background(), &models.ProfileUpdateRequest{ID: uuid.New(), Status: models.RequestStatusApproved})
	})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
