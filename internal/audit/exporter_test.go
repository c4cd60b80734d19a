package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
)

type sliceLister struct {
	entries []models.AuditLogEntry
	err     error
	calls   int
}

func (l *sliceLister) List(_ context.Context, _ Filters, limit, offset int) ([]models.AuditLogEntry, int, error) {
	l.calls++
	if l.err != nil {
		return nil, 0, l.err
	}
	if offset >= len(l.entries) {
		return nil, len(l.entries), nil
	}
	end := offset + limit
	if end > len(l.entries) {
		end = len(l.entries)
	}
	return l.entries[offset:end], len(l.entries), nil
}

type memStore struct {
	objects    map[string]string
	presignErr error
}

func (s *memStore) Upload(_ context.Context, bucket, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = string(b)
	return nil
}

func (s *memStore) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return "https://" + bucket + ".example/" + key + "?sig=x", nil
}

func (s *memStore) DeleteObject(_ context.Context, bucket, key string) error {
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *memStore) ExportsBucket() string { return "exports" }

func (s *memStore) PresignExpire() time.Duration { return 10 * time.Minute }

func makeEntries(n int) []models.AuditLogEntry {
	out := make([]models.AuditLogEntry, n)
	for i := range out {
		actor := uuid.New()
		out[i] = models.AuditLogEntry{
			ID:        uuid.New(),
			Action:    ActionUserLoggedIn,
			UserID:    &actor,
			Metadata:  json.RawMessage(`{"user_agent":"curl, 8.0"}`),
			IPAddress: "10.0.0.1",
			CreatedAt: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestExportWritesCSVAcrossPages(t *testing.T) {
	lister := &sliceLister{entries: makeEntries(exportPageSize + 3)}
	store := &memStore{objects: map[string]string{}}
	exp := NewExporter(lister, store, zap.NewNop())
	exp.now = func() time.Time { return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) }

	res, err := exp.Export(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, exportPageSize+3, res.Rows)
	assert.False(t, res.Truncated)
	assert.Equal(t, 2, lister.calls)
	assert.True(t, strings.HasPrefix(res.Key, "audit-exports/2025/02/audit-20250203T090000Z-"))
	assert.Contains(t, res.DownloadURL, res.Key)
	assert.Equal(t, time.Date(2025, 2, 3, 9, 10, 0, 0, time.UTC), res.ExpiresAt)

	body, ok := store.objects["exports/"+res.Key]
	require.True(t, ok)
	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, exportPageSize+4)
	assert.Equal(t, csvHeader, records[0])
	first := records[1]
	assert.Equal(t, ActionUserLoggedIn, first[2])
	assert.Equal(t, "", first[4])
	assert.Equal(t, `{"user_agent":"curl, 8.0"}`, first[6])
}

func TestExportPropagatesListErrors(t *testing.T) {
	exp := NewExporter(&sliceLister{err: errors.New("db down")}, &memStore{objects: map[string]string{}}, zap.NewNop())
	_, err := exp.Export(context.Background(), Filters{})
	assert.Error(t, err)
}

func TestExportRemovesObjectWhenPresignFails(t *testing.T) {
	store := &memStore{objects: map[string]string{}, presignErr: errors.New("no credentials")}
	exp := NewExporter(&sliceLister{entries: makeEntries(2)}, store, zap.NewNop())
	_, err := exp.Export(context.Background(), Filters{})
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestHandlerExportUnavailableWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(&sliceLister{}, nil, zap.NewNop())
	r.POST("/admin/audit-logs/export", h.Export)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/audit-logs/export", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlerListValidatesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(&sliceLister{entries: makeEntries(3)}, nil, zap.NewNop())
	r.GET("/admin/audit-logs", h.List)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit-logs?user_id=bad&action=nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, "user_id")
	assert.Contains(t, body.Fields, "action")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit-logs?limit=2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data struct {
			Items []models.AuditLogEntry `json:"items"`
			Total int                    `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data.Items, 2)
	assert.Equal(t, 3, page.Data.Total)
}
