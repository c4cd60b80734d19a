package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/response"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountInactive is returned for suspended or pending accounts.
	ErrAccountInactive = errors.New("account is not active")
)

// Registration is a self sign-up.
type Registration struct {
	Name     string
	Email    string
	Password string
	Province string
}

// Accounts creates and authenticates users.
type Accounts interface {
	Register(ctx context.Context, in Registration, ip string) (*models.User, error)
	Authenticate(ctx context.Context, email, password, ip, userAgent string) (*models.User, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Province string `json:"province"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	accounts Accounts
	jwt      *JWTService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(accounts Accounts, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{accounts: accounts, jwt: jwt, logger: logger}
}

// Register handles POST /auth/register. New accounts always get the user role.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Province: req.Province,
	}, c.ClientIP())
	if err != nil {
		h.logger.Warn("register failed", zap.Error(err))
		response.Error(c, err)
		return
	}

	token, err := h.jwt.Generate(user.ID)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		response.Unauthorized(c, ErrInvalidCredentials.Error())
		return
	case errors.Is(err, ErrAccountInactive):
		response.Forbidden(c, ErrAccountInactive.Error())
		return
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		response.Internal(c, "internal server error")
		return
	}

	token, err := h.jwt.Generate(user.ID)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}
