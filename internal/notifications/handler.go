package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/response"
)

// EmailLogLister lists delivery attempts.
type EmailLogLister interface {
	List(ctx context.Context, f EmailLogFilter, limit, offset int) ([]*models.EmailLog, int, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs   EmailLogLister
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs EmailLogLister, logger *zap.Logger) *Handler {
	return &Handler{logs: logs, logger: logger}
}

// ListEmailLogs handles GET /admin/email-logs?status=&recipient=.
func (h *Handler) ListEmailLogs(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != models.EmailLogStatusSent && status != models.EmailLogStatusFailed {
		response.BadRequest(c, "status must be sent or failed")
		return
	}
	limit, offset := response.Pagination(c)
	logs, total, err := h.logs.List(c.Request.Context(), EmailLogFilter{Status: status, Recipient: c.Query("recipient")}, limit, offset)
	if err != nil {
		h.logger.Error("list email logs", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, response.Page{Items: logs, Total: total, Limit: limit, Offset: offset})
}
