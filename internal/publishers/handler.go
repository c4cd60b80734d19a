package publishers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/response"
	"github.com/tender-hub/backend/pkg/utils"
)

// Store is the publishers persistence the handler needs.
type Store interface {
	CountByProvince(ctx context.Context) ([]models.ProvinceSummary, error)
	List(ctx context.Context, province string, limit, offset int) ([]models.Publisher, int, error)
	Create(ctx context.Context, p *models.Publisher) error
}

// Handler handles province and publisher endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a publishers handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// CreatePublisherRequest is the body for POST /publishers.
type CreatePublisherRequest struct {
	Name         string `json:"name" binding:"required,max=255"`
	Province     string `json:"province" binding:"required"`
	Website      string `json:"website" binding:"omitempty,url,max=500"`
	ContactEmail string `json:"contact_email"`
}

// Provinces handles GET /provinces.
func (h *Handler) Provinces(c *gin.Context) {
	list, err := h.store.CountByProvince(c.Request.Context())
	if err != nil {
		h.logger.Error("count publishers by province", zap.Error(err))
		response.Internal(c, "internal server error")
		return
	}
	response.OK(c, list)
}

// List handles GET /publishers?province=.
func (h *Handler) List(c *gin.Context) {
	province := strings.TrimSpace(c.Query("province"))
	if province != "" && !models.IsProvince(province) {
		response.Error(c, apperr.FieldError("province", "unknown province"))
		return
	}
	limit, offset := response.Pagination(c)
	list, total, err := h.store.List(c.Request.Context(), province, limit, offset)
	if err != nil {
		h.logger.Error("list publishers", zap.Error(err))
		response.Internal(c, "internal server error")
		return
	}
	response.OK(c, response.Page{Items: list, Total: total, Limit: limit, Offset: offset})
}

// Create handles POST /publishers.
func (h *Handler) Create(c *gin.Context) {
	var req CreatePublisherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	fields := map[string]string{}
	p := &models.Publisher{
		Name:     strings.TrimSpace(req.Name),
		Province: strings.TrimSpace(req.Province),
		Website:  strings.TrimSpace(req.Website),
	}
	if p.Name == "" {
		fields["name"] = "is required"
	}
	if !models.IsProvince(p.Province) {
		fields["province"] = "unknown province"
	}
	if req.ContactEmail != "" {
		email, ok := utils.NormalizeEmail(req.ContactEmail)
		if !ok {
			fields["contact_email"] = "must be a valid email address"
		}
		p.ContactEmail = email
	}
	if len(fields) > 0 {
		response.Error(c, apperr.Validation("invalid publisher", fields))
		return
	}
	if err := h.store.Create(c.Request.Context(), p); err != nil {
		if !apperr.IsConflict(err) {
			h.logger.Error("create publisher", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}
