package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/database"
)

// ErrDuplicate is returned when a publisher with the same name already exists in the province.
var ErrDuplicate = apperr.Conflict("publisher already exists in this province")

// Repository handles publishers persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a publishers repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// CountByProvince returns every known province with its publisher count, in display order.
// Provinces without publishers are reported with zero.
func (r *Repository) CountByProvince(ctx context.Context) ([]models.ProvinceSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT province, COUNT(*) FROM publishers GROUP BY province`)
	if err != nil {
		return nil, fmt.Errorf("count publishers: %w", err)
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var province string
		var n int
		if err := rows.Scan(&province, &n); err != nil {
			return nil, err
		}
		counts[province] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]models.ProvinceSummary, 0, len(models.Provinces))
	for _, p := range models.Provinces {
		out = append(out, models.ProvinceSummary{Name: p, PublisherCount: counts[p]})
	}
	return out, nil
}

// List returns publishers ordered by name, optionally limited to one province, plus the total.
func (r *Repository) List(ctx context.Context, province string, limit, offset int) ([]models.Publisher, int, error) {
	const where = ` WHERE ($1 = '' OR province = $1)`
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM publishers`+where, province).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count publishers: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT id, name, province, COALESCE(website, ''), COALESCE(contact_email, ''), created_at
		FROM publishers`+where+` ORDER BY name, id LIMIT $2 OFFSET $3`, province, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list publishers: %w", err)
	}
	defer rows.Close()
	list := make([]models.Publisher, 0)
	for rows.Next() {
		var p models.Publisher
		if err := rows.Scan(&p.ID, &p.Name, &p.Province, &p.Website, &p.ContactEmail, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	return list, total, rows.Err()
}

// Create inserts a publisher.
func (r *Repository) Create(ctx context.Context, p *models.Publisher) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	const q = `INSERT INTO publishers (id, name, province, website, contact_email, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`
	if _, err := r.db.Exec(ctx, q, p.ID, p.Name, p.Province, p.Website, p.ContactEmail, p.CreatedAt); err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert publisher: %w", err)
	}
	return nil
}
