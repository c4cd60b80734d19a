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
	"github.com/tender-hub/backend/pkg/database"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = apperr.NotFound("user")

// ErrEmailTaken is returned when an email already belongs to another user.
var ErrEmailTaken = apperr.Conflict("email already registered")

const emailConstraint = "users_email_lower_key"

const userColumns = `id, name, email, password_hash, role, status, province, invited_by, invited_at, created_at, updated_at`

// Repository handles users persistence on a pool or inside a transaction.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a users repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var province *string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Status, &province, &u.InvitedBy, &u.InvitedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if province != nil {
		u.Province = *province
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByIDForUpdate returns a user and locks the row until the transaction ends.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// GetByEmail returns a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// EmailTaken reports whether email belongs to a user other than exclude.
func (r *Repository) EmailTaken(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	var taken bool
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`
	if err := r.db.QueryRow(ctx, q, email, exclude).Scan(&taken); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// Create inserts a new user. A duplicate email returns ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	const q = `INSERT INTO users (id, name, email, password_hash, role, status, province, invited_by, invited_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, q, u.ID, u.Name, u.Email, u.Password, u.Role, u.Status, u.Province, u.InvitedBy, u.InvitedAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) execOne(ctx context.Context, what, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		if database.IsUniqueViolation(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the account status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error {
	return r.execOne(ctx, "update user status", `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

// UpdateRole sets the role.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	return r.execOne(ctx, "update user role", `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

// UpdateProfile writes name and email. A duplicate email returns ErrEmailTaken.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) error {
	return r.execOne(ctx, "update user profile", `UPDATE users SET name = $2, email = $3, updated_at = NOW() WHERE id = $1`, id, name, email)
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// adminLockKey is the transaction-scoped advisory lock held by every change that can remove an admin.
const adminLockKey = 7101001

// AdminCount is the number of admin accounts.
type AdminCount struct {
	Active int
	Total  int
}

// CountAdmins takes the admin advisory lock, then counts admins. Inside a transaction the lock is
// held until commit, so two changes that each remove a different admin run one after the other and
// the second sees the first one's result.
func (r *Repository) CountAdmins(ctx context.Context) (AdminCount, error) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminLockKey); err != nil {
		return AdminCount{}, fmt.Errorf("lock admins: %w", err)
	}
	var c AdminCount
	const q = `SELECT COUNT(*) FILTER (WHERE status = 'active'), COUNT(*) FROM users WHERE role = 'admin'`
	if err := r.db.QueryRow(ctx, q).Scan(&c.Active, &c.Total); err != nil {
		return AdminCount{}, fmt.Errorf("count admins: %w", err)
	}
	return c, nil
}

// CountByStatus returns user counts keyed by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[models.UserStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM users GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count users by status: %w", err)
	}
	defer rows.Close()
	out := map[models.UserStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.UserStatus(status)] = n
	}
	return out, rows.Err()
}

// ListFilter narrows List. Empty fields are ignored.
type ListFilter struct {
	Role   models.Role
	Status models.UserStatus
	Search string
}

// List returns users ordered by name, plus the total count ignoring pagination.
func (r *Repository) List(ctx context.Context, f ListFilter, limit, offset int) ([]models.User, int, error) {
	where := ` WHERE ($1 = '' OR role = $1) AND ($2 = '' OR status = $2)
		AND ($3 = '' OR name ILIKE '%' || $3 || '%' OR email ILIKE '%' || $3 || '%')`
	args := []any{string(f.Role), string(f.Status), f.Search}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY name, id LIMIT $4 OFFSET $5`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	list := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *u)
	}
	return list, total, rows.Err()
}
