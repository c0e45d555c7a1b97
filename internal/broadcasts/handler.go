package broadcasts

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/middleware"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/pkg/response"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Lister lists a room's broadcasts; *Repository implements it.
type Lister interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Broadcast, error)
}

// Handler serves broadcast history.
type Handler struct {
	repo   Lister
	logger *zap.Logger
}

// NewHandler creates a broadcasts handler.
func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /rooms/:id/broadcasts?limit=. Mount behind middleware.RequireRoomRole(owner).
func (h *Handler) List(c *gin.Context) {
	room := c.MustGet(middleware.ContextRoom).(*models.Room)
	limit := defaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := h.repo.ListByRoom(c.Request.Context(), room.ID, limit)
	if err != nil {
		h.logger.Error("list broadcasts", zap.String("room_id", room.ID.String()), zap.Error(err))
		response.Internal(c, "failed to list broadcasts")
		return
	}
	response.OK(c, list)
}
