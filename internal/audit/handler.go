package audit

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/pkg/response"
)

// Handler serves the admin audit views.
type Handler struct {
	entries  Lister
	exporter *Exporter
	logger   *zap.Logger
}

// NewHandler creates an audit handler. exporter may be nil when no exports bucket is configured.
func NewHandler(entries Lister, exporter *Exporter, logger *zap.Logger) *Handler {
	return &Handler{entries: entries, exporter: exporter, logger: logger}
}

// List handles GET /admin/audit-logs?user_id=&target_user_id=&action=&from=&to=.
func (h *Handler) List(c *gin.Context) {
	f, err := FiltersFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, offset := response.Pagination(c)
	list, total, err := h.entries.List(c.Request.Context(), f, limit, offset)
	if err != nil {
		h.logger.Error("list audit logs", zap.Error(err))
		response.Internal(c, "failed to load audit logs")
		return
	}
	response.OK(c, response.Page{Items: list, Total: total, Limit: limit, Offset: offset})
}

// Export handles POST /admin/audit-logs/export with the same query filters as List.
func (h *Handler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.ServiceUnavailable(c, "audit export is not configured")
		return
	}
	f, err := FiltersFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	export, err := h.exporter.Export(ctx, f)
	if err != nil {
		h.logger.Error("export audit logs", zap.Error(err))
		response.Internal(c, "failed to export audit logs")
		return
	}
	response.Created(c, export)
}

// FiltersFromQuery parses audit filters from query parameters.
func FiltersFromQuery(c *gin.Context) (Filters, error) {
	var f Filters
	fields := map[string]string{}

	parseID := func(name string) *uuid.UUID {
		v := c.Query(name)
		if v == "" {
			return nil
		}
		id, err := uuid.Parse(v)
		if err != nil {
			fields[name] = "must be a uuid"
			return nil
		}
		return &id
	}
	parseTime := func(name string) *time.Time {
		v := c.Query(name)
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields[name] = "must be an RFC3339 timestamp"
			return nil
		}
		return &t
	}

	f.UserID = parseID("user_id")
	f.TargetUserID = parseID("target_user_id")
	f.From = parseTime("from")
	f.To = parseTime("to")
	if action := c.Query("action"); action != "" {
		if KnownAction(action) {
			f.Action = &action
		} else {
			fields["action"] = "unknown action"
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		fields["to"] = "must not be before from"
	}
	if len(fields) > 0 {
		return Filters{}, apperr.Validation("invalid filters", fields)
	}
	return f, nil
}
