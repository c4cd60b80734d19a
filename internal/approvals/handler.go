package approvals

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/pkg/response"
)

// Handler handles profile update request endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an approvals handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SubmitRequest is the body for POST /approvals/submit.
type SubmitRequest struct {
	Changes map[string]string `json:"changes" binding:"required"`
	Reason  string            `json:"reason"`
}

// ReviewRequest is the body for POST /approvals/:id/review.
type ReviewRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if !apperr.IsValidation(err) && !apperr.IsConflict(err) && !apperr.IsNotFound(err) && !apperr.IsForbidden(err) {
		h.logger.Error(op, zap.Error(err))
	}
	response.Error(c, err)
}

// Submit handles POST /approvals/submit.
func (h *Handler) Submit(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	created, err := h.svc.Submit(c.Request.Context(), SubmitInput{
		UserID:    userID,
		Changes:   req.Changes,
		Reason:    req.Reason,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.fail(c, "submit profile update", err)
		return
	}
	response.Created(c, created)
}

// Review handles POST /approvals/:id/review.
func (h *Handler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reviewerID, _ := middleware.CurrentUserID(c)
	reviewed, err := h.svc.Review(c.Request.Context(), ReviewInput{
		RequestID:  id,
		ReviewerID: reviewerID,
		Action:     req.Action,
		Reason:     req.Reason,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		h.fail(c, "review profile update", err)
		return
	}
	response.OK(c, reviewed)
}

// Get handles GET /approvals/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	viewer, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	req, err := h.svc.Get(c.Request.Context(), viewer, id)
	if err != nil {
		h.fail(c, "get profile update", err)
		return
	}
	response.OK(c, req)
}

// Pending handles GET /approvals/pending.
func (h *Handler) Pending(c *gin.Context) {
	limit, offset := response.Pagination(c)
	list, total, err := h.svc.ListPending(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, "list pending profile updates", err)
		return
	}
	response.OK(c, response.Page{Items: list, Total: total, Limit: limit, Offset: offset})
}

// Mine handles GET /approvals/mine.
func (h *Handler) Mine(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	list, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "list own profile updates", err)
		return
	}
	response.OK(c, list)
}
