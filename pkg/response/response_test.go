package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-hub/backend/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.FieldError("reason", "required"), http.StatusBadRequest, "invalid request"},
		{"conflict", apperr.Conflict("request already reviewed"), http.StatusConflict, "request already reviewed"},
		{"not found", fmt.Errorf("get: %w", apperr.NotFound("user")), http.StatusNotFound, "user not found"},
		{"forbidden", apperr.Forbidden(), http.StatusForbidden, "insufficient permissions"},
		{"unexpected", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tc.message, body.Error)
		})
	}
}

func TestErrorIncludesValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, apperr.Validation("invalid changes", map[string]string{"phone": "field not allowed"}))

	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "field not allowed", body.Fields["phone"])
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query      string
		limit, off int
	}{
		{"", DefaultPageSize, 0},
		{"limit=5&offset=10", 5, 10},
		{"limit=1000", MaxPageSize, 0},
		{"limit=-3&offset=-1", DefaultPageSize, 0},
		{"limit=abc", DefaultPageSize, 0},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		limit, offset := Pagination(c)
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.off, offset, tt.query)
	}
}
