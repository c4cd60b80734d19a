// Package monitoring serves the role-based dashboard and the health probe.
package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/permissions"
	"github.com/tender-hub/backend/pkg/queue"
	"github.com/tender-hub/backend/pkg/response"
)

// RequestStats reads the profile update queue.
type RequestStats interface {
	CountPending(ctx context.Context) (int, error)
	PendingForUser(ctx context.Context, userID uuid.UUID) (*models.ProfileUpdateRequest, error)
}

// UserStats reads account counts.
type UserStats interface {
	CountByStatus(ctx context.Context) (map[models.UserStatus]int, error)
}

// OutboxStats reads the notification outbox.
type OutboxStats interface {
	CountPending(ctx context.Context) (int, error)
}

// QueueStats reads Redis queue depths.
type QueueStats interface {
	Length(ctx context.Context, key string) (int64, error)
}

// PoolStats is a snapshot of the database connection pool.
type PoolStats struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
}

// PgxPoolStats adapts a pgx pool to the dashboard.
func PgxPoolStats(pool *pgxpool.Pool) func() PoolStats {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{Total: s.TotalConns(), Idle: s.IdleConns(), Acquired: s.AcquiredConns(), Max: s.MaxConns()}
	}
}

// Check is a named dependency probe for GET /health.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler handles GET /dashboard and GET /health.
type Handler struct {
	requests RequestStats
	users    UserStats
	outbox   OutboxStats
	queues   QueueStats
	pool     func() PoolStats
	checks   []Check
	logger   *zap.Logger
}

// NewHandler creates a monitoring handler. pool may be nil.
func NewHandler(requests RequestStats, users UserStats, outbox OutboxStats, queues QueueStats, pool func() PoolStats, checks []Check, logger *zap.Logger) *Handler {
	return &Handler{
		requests: requests,
		users:    users,
		outbox:   outbox,
		queues:   queues,
		pool:     pool,
		checks:   checks,
		logger:   logger,
	}
}

// Dashboard is the GET /dashboard payload. Sections are filled according to the caller's role.
type Dashboard struct {
	Role             models.Role                  `json:"role"`
	MyPendingRequest *models.ProfileUpdateRequest `json:"my_pending_request"`
	Review           *ReviewSummary               `json:"review,omitempty"`
	System           *SystemSummary               `json:"system,omitempty"`
}

// ReviewSummary is shown to managers and above.
type ReviewSummary struct {
	PendingRequests int                       `json:"pending_requests"`
	UsersByStatus   map[models.UserStatus]int `json:"users_by_status"`
}

// SystemSummary is shown to admins and above.
type SystemSummary struct {
	OutboxPending int64      `json:"outbox_pending"`
	EmailQueue    int64      `json:"email_queue"`
	DeadLetters   int64      `json:"dead_letters"`
	DBPool        *PoolStats `json:"db_pool,omitempty"`
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	d, err := h.build(c.Request.Context(), u)
	if err != nil {
		h.logger.Error("build dashboard", zap.Error(err), zap.String("user_id", u.ID.String()))
		response.Internal(c, "internal server error")
		return
	}
	response.OK(c, d)
}

func (h *Handler) build(ctx context.Context, u *models.User) (*Dashboard, error) {
	caps := permissions.For(u, nil)
	d := &Dashboard{Role: u.Role}

	mine, err := h.requests.PendingForUser(ctx, u.ID)
	switch {
	case err == nil:
		d.MyPendingRequest = mine
	case !apperr.IsNotFound(err):
		return nil, err
	}

	if caps.HasRoleOrHigher(models.RoleManager) {
		pending, err := h.requests.CountPending(ctx)
		if err != nil {
			return nil, err
		}
		byStatus, err := h.users.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		d.Review = &ReviewSummary{PendingRequests: pending, UsersByStatus: byStatus}
	}

	if caps.HasRoleOrHigher(models.RoleAdmin) {
		sys := &SystemSummary{}
		outbox, err := h.outbox.CountPending(ctx)
		if err != nil {
			return nil, err
		}
		sys.OutboxPending = int64(outbox)
		if sys.EmailQueue, err = h.queues.Length(ctx, queue.QueueEmails); err != nil {
			return nil, err
		}
		if sys.DeadLetters, err = h.queues.Length(ctx, queue.QueueDLQ); err != nil {
			return nil, err
		}
		if h.pool != nil {
			stats := h.pool()
			sys.DBPool = &stats
		}
		d.System = sys
	}
	return d, nil
}

// Health handles GET /health. Every check runs; any failure turns the response into a 503.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			results[check.Name] = "unavailable"
			status = "degraded"
			continue
		}
		results[check.Name] = "ok"
	}
	body := gin.H{"status": status, "checks": results}
	if status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Data: body, Error: "dependency unavailable"})
		return
	}
	response.OK(c, body)
}
