package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/database"
)

// Repository appends and lists audit_logs rows. It runs on a pool or inside a transaction.
type Repository struct {
	db  database.DBTX
	now func() time.Time
}

// NewRepository creates an audit repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Record builds an entry for md and appends it. actorID and targetUserID may be nil
// (system actions, self sign-up).
func (r *Repository) Record(ctx context.Context, actorID, targetUserID *uuid.UUID, md Metadata, ip string) (*models.AuditLogEntry, error) {
	entry, err := NewEntry(actorID, targetUserID, md, ip)
	if err != nil {
		return nil, err
	}
	if err := r.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// NewEntry encodes md into an unsaved entry.
func NewEntry(actorID, targetUserID *uuid.UUID, md Metadata, ip string) (*models.AuditLogEntry, error) {
	if md == nil || !KnownAction(md.Action()) {
		return nil, fmt.Errorf("audit: unregistered metadata %T", md)
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal %s metadata: %w", md.Action(), err)
	}
	return &models.AuditLogEntry{
		Action:       md.Action(),
		UserID:       actorID,
		TargetUserID: targetUserID,
		Metadata:     raw,
		IPAddress:    ip,
	}, nil
}

// Append inserts entry, assigning its ID and timestamp.
func (r *Repository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if !KnownAction(entry.Action) {
		return fmt.Errorf("audit: unknown action %q", entry.Action)
	}
	entry.ID = uuid.New()
	entry.CreatedAt = r.now().UTC()

	const q = `INSERT INTO audit_logs (id, action, user_id, target_user_id, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`
	if _, err := r.db.Exec(ctx, q, entry.ID, entry.Action, entry.UserID, entry.TargetUserID, []byte(entry.Metadata), entry.IPAddress, entry.CreatedAt); err != nil {
		return fmt.Errorf("append audit %s: %w", entry.Action, err)
	}
	return nil
}

// Filters narrows List results. Nil fields are ignored.
type Filters struct {
	UserID       *uuid.UUID
	TargetUserID *uuid.UUID
	Action       *string
	From         *time.Time
	To           *time.Time
}

func (f Filters) where() (string, []any) {
	clause := " WHERE 1=1"
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		clause += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.TargetUserID != nil {
		add("target_user_id = $%d", *f.TargetUserID)
	}
	if f.Action != nil {
		add("action = $%d", *f.Action)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	return clause, args
}

// List returns matching entries newest first, plus the total count ignoring pagination.
func (r *Repository) List(ctx context.Context, f Filters, limit, offset int) ([]models.AuditLogEntry, int, error) {
	where, args := f.where()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	q := `SELECT id, action, user_id, target_user_id, metadata, COALESCE(ip_address, ''), created_at FROM audit_logs` +
		where + fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	list := make([]models.AuditLogEntry, 0)
	for rows.Next() {
		var e models.AuditLogEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &e.TargetUserID, &metadata, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Metadata = metadata
		list = append(list, e)
	}
	return list, total, rows.Err()
}
