package users

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/response"
)

// Handler handles user administration endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// InviteRequest is the body for POST /users/invitations.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AcceptInvitationRequest is the body for POST /invitations/accept.
type AcceptInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ChangeRoleRequest is the body for PATCH /users/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if !apperr.IsValidation(err) && !apperr.IsConflict(err) && !apperr.IsNotFound(err) && !apperr.IsForbidden(err) {
		h.logger.Error(op, zap.Error(err))
	}
	response.Error(c, err)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

// Me handles GET /users/me.
func (h *Handler) Me(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	response.OK(c, u.ToPublic())
}

// List handles GET /users?role=&status=&q=.
func (h *Handler) List(c *gin.Context) {
	limit, offset := response.Pagination(c)
	f := ListFilter{
		Role:   models.Role(c.Query("role")),
		Status: models.UserStatus(c.Query("status")),
		Search: c.Query("q"),
	}
	list, total, err := h.svc.List(c.Request.Context(), f, limit, offset)
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	items := make([]models.UserPublic, 0, len(list))
	for i := range list {
		items = append(items, list[i].ToPublic())
	}
	response.OK(c, response.Page{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get user", err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Invite handles POST /users/invitations.
func (h *Handler) Invite(c *gin.Context) {
	actorID, _ := middleware.CurrentUserID(c)
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), actorID, InviteInput{Email: req.Email, Role: req.Role}, c.ClientIP())
	if err != nil {
		h.fail(c, "invite user", err)
		return
	}
	response.Created(c, inv)
}

// AcceptInvitation handles POST /invitations/accept. Public.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	var req AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u, err := h.svc.AcceptInvitation(c.Request.Context(), AcceptInput{Token: req.Token, Name: req.Name, Password: req.Password}, c.ClientIP())
	if err != nil {
		h.fail(c, "accept invitation", err)
		return
	}
	response.Created(c, u.ToPublic())
}

// Suspend handles POST /users/:id/suspend.
func (h *Handler) Suspend(c *gin.Context) {
	h.transition(c, "suspend user", h.svc.Suspend)
}

// Reactivate handles POST /users/:id/reactivate.
func (h *Handler) Reactivate(c *gin.Context) {
	h.transition(c, "reactivate user", h.svc.Reactivate)
}

type statusChange func(ctx context.Context, actorID, targetID uuid.UUID, ip string) (*models.User, error)

func (h *Handler) transition(c *gin.Context, op string, fn statusChange) {
	targetID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, _ := middleware.CurrentUserID(c)
	u, err := fn(c.Request.Context(), actorID, targetID, c.ClientIP())
	if err != nil {
		h.fail(c, op, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// ChangeRole handles PATCH /users/:id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	targetID, ok := parseID(c)
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actorID, _ := middleware.CurrentUserID(c)
	u, err := h.svc.ChangeRole(c.Request.Context(), actorID, targetID, req.Role, c.ClientIP())
	if err != nil {
		h.fail(c, "change role", err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(c *gin.Context) {
	targetID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, _ := middleware.CurrentUserID(c)
	if err := h.svc.Delete(c.Request.Context(), actorID, targetID, c.ClientIP()); err != nil {
		h.fail(c, "delete user", err)
		return
	}
	response.NoContent(c)
}
