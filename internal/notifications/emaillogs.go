package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/database"
)

// EmailLogRepository handles email_logs persistence.
type EmailLogRepository struct {
	db database.DBTX
}

// NewEmailLogRepository creates an email logs repository.
func NewEmailLogRepository(db database.DBTX) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

// Create inserts one delivery attempt.
func (r *EmailLogRepository) Create(ctx context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	if el.CreatedAt.IsZero() {
		el.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO email_logs (id, template, recipient_email, subject, status, attempt, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9)`
	_, err := r.db.Exec(ctx, q, el.ID, el.Template, el.RecipientEmail, el.Subject, el.Status, el.Attempt, el.SentAt, el.ErrorMessage, el.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// EmailLogFilter narrows List. Empty fields are ignored.
type EmailLogFilter struct {
	Status    string
	Recipient string
}

// List returns email logs newest first, plus the total count ignoring pagination.
func (r *EmailLogRepository) List(ctx context.Context, f EmailLogFilter, limit, offset int) ([]*models.EmailLog, int, error) {
	where := ` WHERE ($1 = '' OR status = $1) AND ($2 = '' OR lower(recipient_email) = lower($2))`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM email_logs`+where, f.Status, f.Recipient).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count email logs: %w", err)
	}

	q := `SELECT id, template, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		FROM email_logs` + where + ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, q, f.Status, f.Recipient, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()
	list := make([]*models.EmailLog, 0)
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.Template, &el.RecipientEmail, &subject, &el.Status, &el.Attempt, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, 0, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, total, rows.Err()
}
