package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/permissions"
	"github.com/tender-hub/backend/pkg/response"
)

// RequireRoleOrHigher allows users whose role ranks at or above min.
func RequireRoleOrHigher(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !permissions.For(user, nil).HasRoleOrHigher(min) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
