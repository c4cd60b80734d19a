package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
)

type stubLogs struct {
	got  EmailLogFilter
	logs []*models.EmailLog
}

func (s *stubLogs) List(_ context.Context, f EmailLogFilter, limit, offset int) ([]*models.EmailLog, int, error) {
	s.got = f
	return s.logs, len(s.logs), nil
}

func TestListEmailLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &stubLogs{logs: []*models.EmailLog{{ID: uuid.New(), Template: models.TemplateWelcome, Status: models.EmailLogStatusFailed}}}
	r := gin.New()
	r.GET("/admin/email-logs", NewHandler(logs, zap.NewNop()).ListEmailLogs)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/email-logs?status=failed&recipient=a@b.co", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, EmailLogFilter{Status: "failed", Recipient: "a@b.co"}, logs.got)
	var body struct {
		Data struct {
			Items []models.EmailLog `json:"items"`
			Total int               `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Total)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/email-logs?status=bounced", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
