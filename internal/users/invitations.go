package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/models"
)

// ErrInvitationNotFound is returned for an unknown invitation token.
var ErrInvitationNotFound = apperr.NotFound("invitation")

// CreateInvitation inserts an invitation, replacing any open invitation for the same email.
func (r *Repository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM invitations WHERE lower(email) = lower($1) AND accepted_at IS NULL`, inv.Email); err != nil {
		return fmt.Errorf("supersede invitations: %w", err)
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().UTC()
	const q = `INSERT INTO invitations (id, email, role, token_hash, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.Exec(ctx, q, inv.ID, inv.Email, inv.Role, inv.TokenHash, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// GetInvitationByTokenHashForUpdate returns the invitation for a token hash and locks it.
func (r *Repository) GetInvitationByTokenHashForUpdate(ctx context.Context, tokenHash string) (*models.Invitation, error) {
	const q = `SELECT id, email, role, token_hash, invited_by, expires_at, accepted_at, created_at
		FROM invitations WHERE token_hash = $1 FOR UPDATE`
	var inv models.Invitation
	err := r.db.QueryRow(ctx, q, tokenHash).Scan(&inv.ID, &inv.Email, &inv.Role, &inv.TokenHash, &inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

// MarkInvitationAccepted stamps accepted_at.
func (r *Repository) MarkInvitationAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}
