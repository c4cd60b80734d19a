package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/database"
)

// ErrNotFound is returned when a profile update request does not exist.
var ErrNotFound = apperr.NotFound("profile update request")

// ErrPendingExists is returned when the user already has a pending request.
var ErrPendingExists = apperr.Conflict("a pending profile update request already exists")

// ErrAlreadyReviewed is returned when a request has left the pending state.
var ErrAlreadyReviewed = apperr.Conflict("profile update request has already been reviewed")

const onePendingConstraint = "profile_update_requests_one_pending"

const requestColumns = `id, user_id, requested_changes, reason, status, requested_at, reviewed_by, reviewed_at, rejection_reason`

// Repository handles profile_update_requests persistence on a pool or inside a transaction.
type Repository struct {
	db  database.DBTX
	now func() time.Time
}

// NewRepository creates a requests repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

func scanRequest(row pgx.Row) (*models.ProfileUpdateRequest, error) {
	var req models.ProfileUpdateRequest
	var changes []byte
	var reason *string
	err := row.Scan(&req.ID, &req.UserID, &changes, &reason, &req.Status, &req.RequestedAt, &req.ReviewedBy, &req.ReviewedAt, &req.RejectionReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(changes, &req.RequestedChanges); err != nil {
		return nil, fmt.Errorf("decode requested changes of %s: %w", req.ID, err)
	}
	if reason != nil {
		req.Reason = *reason
	}
	return &req, nil
}

// Create inserts a pending request. A second pending request for the same user returns
// ErrPendingExists.
func (r *Repository) Create(ctx context.Context, req *models.ProfileUpdateRequest) error {
	changes, err := json.Marshal(req.RequestedChanges)
	if err != nil {
		return fmt.Errorf("marshal requested changes: %w", err)
	}
	req.ID = uuid.New()
	req.Status = models.RequestStatusPending
	req.RequestedAt = r.now().UTC()

	const q = `INSERT INTO profile_update_requests (id, user_id, requested_changes, reason, status, requested_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`
	_, err = r.db.Exec(ctx, q, req.ID, req.UserID, changes, req.Reason, req.Status, req.RequestedAt)
	if err != nil {
		if database.IsUniqueViolation(err, onePendingConstraint) {
			return ErrPendingExists
		}
		return fmt.Errorf("insert profile update request: %w", err)
	}
	return nil
}

// Get returns a request by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.ProfileUpdateRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM profile_update_requests WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get profile update request: %w", err)
	}
	return req, err
}

// HasPending reports whether userID has a pending request.
func (r *Repository) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM profile_update_requests WHERE user_id = $1 AND status = 'pending')`
	if err := r.db.QueryRow(ctx, q, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// PendingForUser returns the user's pending request, or ErrNotFound.
func (r *Repository) PendingForUser(ctx context.Context, userID uuid.UUID) (*models.ProfileUpdateRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM profile_update_requests
		WHERE user_id = $1 AND status = 'pending'`, userID))
}

// CompleteReview moves a pending request to its terminal state. It only succeeds while the row is
// still pending, so of two concurrent reviews exactly one wins and the other gets ErrAlreadyReviewed.
func (r *Repository) CompleteReview(ctx context.Context, req *models.ProfileUpdateRequest) error {
	const q = `UPDATE profile_update_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5
		WHERE id = $1 AND status = 'pending'`
	tag, err := r.db.Exec(ctx, q, req.ID, req.Status, req.ReviewedBy, req.ReviewedAt, req.RejectionReason)
	if err != nil {
		return fmt.Errorf("complete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReviewed
	}
	return nil
}

// CountPending returns the number of requests awaiting review.
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profile_update_requests WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return n, nil
}

// ListPending returns pending requests oldest first, plus the total pending count.
func (r *Repository) ListPending(ctx context.Context, limit, offset int) ([]models.ProfileUpdateRequest, int, error) {
	total, err := r.CountPending(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := r.list(ctx, `SELECT `+requestColumns+` FROM profile_update_requests
		WHERE status = 'pending' ORDER BY requested_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListForUser returns every request the user has made, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ProfileUpdateRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM profile_update_requests
		WHERE user_id = $1 ORDER BY requested_at DESC, id`, userID)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.ProfileUpdateRequest, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list profile update requests: %w", err)
	}
	defer rows.Close()
	list := make([]models.ProfileUpdateRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *req)
	}
	return list, rows.Err()
}
