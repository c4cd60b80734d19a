package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/queue"
)

type stubStats struct {
	mine     *models.ProfileUpdateRequest
	pending  int
	byStatus map[models.UserStatus]int
	outbox   int
	queues   map[string]int64
	err      error
}

func (s *stubStats) CountPending(context.Context) (int, error) { return s.pending, s.err }

func (s *stubStats) PendingForUser(context.Context, uuid.UUID) (*models.ProfileUpdateRequest, error) {
	if s.mine == nil {
		return nil, apperr.NotFound("profile update request")
	}
	return s.mine, nil
}

func (s *stubStats) CountByStatus(context.Context) (map[models.UserStatus]int, error) {
	return s.byStatus, s.err
}

func (s *stubStats) Length(_ context.Context, key string) (int64, error) { return s.queues[key], s.err }

type outboxStub struct{ n int }

func (o outboxStub) CountPending(context.Context) (int, error) { return o.n, nil }

func dashboardFor(t *testing.T, stats *stubStats, role models.Role) (int, Dashboard) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	pool := func() PoolStats { return PoolStats{Total: 4, Idle: 3, Acquired: 1, Max: 10} }
	h := NewHandler(stats, stats, outboxStub{n: 2}, stats, pool, nil, zap.NewNop())

	r := gin.New()
	u := &models.User{ID: uuid.New(), Role: role, Status: models.UserStatusActive}
	r.GET("/dashboard", func(c *gin.Context) {
		c.Set(middleware.ContextUser, u)
		c.Next()
	}, h.Dashboard)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	var env struct {
		Data Dashboard `json:"data"`
	}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env.Data
}

func newStats() *stubStats {
	return &stubStats{
		mine:     &models.ProfileUpdateRequest{ID: uuid.New(), Status: models.RequestStatusPending},
		pending:  5,
		byStatus: map[models.UserStatus]int{models.UserStatusActive: 9, models.UserStatusSuspended: 1},
		queues:   map[string]int64{queue.QueueEmails: 7, queue.QueueDLQ: 1},
	}
}

func TestDashboardForUser(t *testing.T) {
	code, d := dashboardFor(t, newStats(), models.RoleUser)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, d.MyPendingRequest)
	assert.Nil(t, d.Review)
	assert.Nil(t, d.System)
}

func TestDashboardForManager(t *testing.T) {
	stats := newStats()
	stats.mine = nil
	code, d := dashboardFor(t, stats, models.RoleManager)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, d.MyPendingRequest)
	require.NotNil(t, d.Review)
	assert.Equal(t, 5, d.Review.PendingRequests)
	assert.Equal(t, 1, d.Review.UsersByStatus[models.UserStatusSuspended])
	assert.Nil(t, d.System)
}

func TestDashboardForAdmin(t *testing.T) {
	code, d := dashboardFor(t, newStats(), models.RoleAdmin)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, d.System)
	assert.Equal(t, int64(2), d.System.OutboxPending)
	assert.Equal(t, int64(7), d.System.EmailQueue)
	assert.Equal(t, int64(1), d.System.DeadLetters)
	require.NotNil(t, d.System.DBPool)
	assert.Equal(t, int32(10), d.System.DBPool.Max)
}

func TestDashboardStoreFailure(t *testing.T) {
	stats := newStats()
	stats.err = errors.New("connection reset")
	code, _ := dashboardFor(t, stats, models.RoleManager)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	serve := func(checks []Check) *httptest.ResponseRecorder {
		r := gin.New()
		r.GET("/health", NewHandler(nil, nil, nil, nil, nil, checks, zap.NewNop()).Health)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w
	}

	w := serve([]Check{{Name: "database", Probe: healthy}, {Name: "redis", Probe: healthy}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve([]Check{{Name: "database", Probe: healthy}, {Name: "redis", Probe: down}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
	assert.NotContains(t, w.Body.String(), "refused")
}
