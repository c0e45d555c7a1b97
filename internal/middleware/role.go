package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-rooms/backend/internal/access"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/pkg/response"
)

// ContextRoom is the key for the *models.Room loaded by RequireRoomRole.
const ContextRoom = "room"

// RoomLoader loads a room snapshot by ID.
type RoomLoader interface {
	Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
}

// RequireRoomRole returns a middleware that loads the room named by the :id
// param and allows only callers holding one of the given roles in it.
func RequireRoomRole(rooms RoomLoader, roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		userVal, ok := c.Get(ContextUserID)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		userID, _ := userVal.(uuid.UUID)
		roomID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid room id")
			c.Abort()
			return
		}
		room, err := rooms.Snapshot(c.Request.Context(), roomID)
		if err != nil || room == nil {
			response.NotFound(c, "room not found")
			c.Abort()
			return
		}
		if _, ok := allowed[access.RoleOf(room, userID)]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Set(ContextRoom, room)
		c.Next()
	}
}
