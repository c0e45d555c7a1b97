package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-rooms/backend/internal/auth"
	"github.com/aura-rooms/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID (uuid.UUID) in gin context.
	ContextUserID = "user_id"
	// ContextDisplayName is the key for the user's display name in gin context.
	ContextDisplayName = "user_display_name"
	// ContextAvatarURL is the key for the user's avatar URL in gin context.
	ContextAvatarURL = "user_avatar_url"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextDisplayName, claims.DisplayName)
		c.Set(ContextAvatarURL, claims.AvatarURL)
		c.Next()
	}
}
