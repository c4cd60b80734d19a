// Package notifications delivers email notifications through a transactional outbox.
//
// Workflows insert a notification_outbox row in the same transaction as the change that triggers it.
// The Relay moves pending rows onto the Redis email queue and the Worker renders and sends them,
// logging every attempt to email_logs.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/database"
)

// NewIntent builds an unsaved outbox row.
func NewIntent(template, recipient string, vars map[string]string) *models.NotificationIntent {
	if vars == nil {
		vars = map[string]string{}
	}
	return &models.NotificationIntent{
		Template:  template,
		Recipient: recipient,
		Variables: vars,
		Status:    models.OutboxStatusPending,
	}
}

// OutboxRepository reads and writes notification_outbox on a pool or inside a transaction.
type OutboxRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewOutboxRepository creates an outbox repository.
func NewOutboxRepository(db database.DBTX) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

// Enqueue inserts a pending intent, assigning its ID and timestamp.
func (r *OutboxRepository) Enqueue(ctx context.Context, intent *models.NotificationIntent) error {
	if _, ok := templateFiles[intent.Template]; !ok {
		return fmt.Errorf("enqueue notification: unknown template %q", intent.Template)
	}
	vars, err := json.Marshal(intent.Variables)
	if err != nil {
		return fmt.Errorf("marshal notification variables: %w", err)
	}
	intent.ID = uuid.New()
	intent.Status = models.OutboxStatusPending
	intent.CreatedAt = r.now().UTC()

	const q = `INSERT INTO notification_outbox (id, template, recipient, variables, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, q, intent.ID, intent.Template, intent.Recipient, vars, intent.Status, intent.CreatedAt); err != nil {
		return fmt.Errorf("enqueue notification %s: %w", intent.Template, err)
	}
	return nil
}

// ClaimPending locks up to limit pending rows, oldest first. Rows locked by another relay are
// skipped. Must run inside a transaction.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]models.NotificationIntent, error) {
	const q = `SELECT id, template, recipient, variables, created_at
		FROM notification_outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`
	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var list []models.NotificationIntent
	for rows.Next() {
		var in models.NotificationIntent
		var vars []byte
		if err := rows.Scan(&in.ID, &in.Template, &in.Recipient, &vars, &in.CreatedAt); err != nil {
			return nil, err
		}
		if len(vars) > 0 {
			if err := json.Unmarshal(vars, &in.Variables); err != nil {
				return nil, fmt.Errorf("decode outbox %s variables: %w", in.ID, err)
			}
		}
		in.Status = models.OutboxStatusPending
		list = append(list, in)
	}
	return list, rows.Err()
}

// MarkDispatched flags rows as handed to the queue.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE notification_outbox SET status = 'dispatched', dispatched_at = $2 WHERE id = ANY($1)`
	if _, err := r.db.Exec(ctx, q, ids, r.now().UTC()); err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return nil
}

// CountPending returns the number of rows not yet handed to the queue.
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notification_outbox WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}
