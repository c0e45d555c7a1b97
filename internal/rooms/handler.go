package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/access"
	"github.com/aura-rooms/backend/internal/middleware"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/pkg/response"
	"github.com/aura-rooms/backend/pkg/utils"
)

// Store is the persistence the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	AddParticipant(ctx context.Context, roomID uuid.UUID, m models.Member) (bool, error)
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Name       string          `json:"name" binding:"required"`
	Password   string          `json:"password"`
	IsPrivate  bool            `json:"is_private"`
	MaxMembers int             `json:"max_members" binding:"min=0"`
	MaxViewers int             `json:"max_viewers" binding:"min=0"`
	Style      json.RawMessage `json:"style"`
	Category   string          `json:"category"`
	Tags       []string        `json:"tags"`
}

// JoinRequest is the body for POST /rooms/:id/join.
type JoinRequest struct {
	As       models.Role `json:"as"` // member or viewer; defaults to viewer
	Password string      `json:"password"`
}

// Handler handles room HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a room handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Create handles POST /rooms. The caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if reason := access.ValidateRoomName(req.Name); reason != "" {
		response.BadRequest(c, reason)
		return
	}
	if reason := access.ValidateRoomPassword(req.Password); reason != "" {
		response.BadRequest(c, reason)
		return
	}

	room := &models.Room{
		Name:       strings.TrimSpace(req.Name),
		OwnerID:    c.MustGet(middleware.ContextUserID).(uuid.UUID),
		IsPrivate:  req.IsPrivate,
		MaxMembers: req.MaxMembers,
		MaxViewers: req.MaxViewers,
		Style:      req.Style,
		Category:   req.Category,
		Tags:       req.Tags,
	}
	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			response.Internal(c, "failed to create room")
			return
		}
		room.PasswordHash = hash
	}
	if err := h.store.Create(c.Request.Context(), room); err != nil {
		h.logger.Error("create room", zap.Error(err))
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, room)
}

// GetByID handles GET /rooms/:id.
func (h *Handler) GetByID(c *gin.Context) {
	room, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, room)
}

// Access handles GET /rooms/:id/access: the caller's role and permissions.
func (h *Handler) Access(c *gin.Context) {
	room, ok := h.load(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	response.OK(c, access.PermissionsOf(room, userID))
}

// Join handles POST /rooms/:id/join.
func (h *Handler) Join(c *gin.Context) {
	room, ok := h.load(c)
	if !ok {
		return
	}
	var req JoinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	if req.As == models.RoleNone {
		req.As = models.RoleViewer
	}
	if req.As != models.RoleMember && req.As != models.RoleViewer {
		response.BadRequest(c, "as must be member or viewer")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if access.HasAccess(room, userID) {
		response.Conflict(c, "already in this room")
		return
	}
	if room.HasPassword() && !utils.CheckPassword(req.Password, room.PasswordHash) {
		response.Forbidden(c, "wrong room password")
		return
	}
	if reason := access.ValidateCapacity(room, req.As); reason != "" {
		response.Conflict(c, reason)
		return
	}

	m := models.Member{
		UserID:      userID,
		DisplayName: c.GetString(middleware.ContextDisplayName),
		AvatarURL:   c.GetString(middleware.ContextAvatarURL),
		Role:        req.As,
	}
	added, err := h.store.AddParticipant(c.Request.Context(), room.ID, m)
	if err != nil {
		h.logger.Error("join room", zap.String("room_id", room.ID.String()), zap.Error(err))
		response.Internal(c, "failed to join room")
		return
	}
	if !added {
		response.Conflict(c, "already in this room")
		return
	}
	response.Created(c, access.Grants(req.As))
}

// Leave handles POST /rooms/:id/leave. Owners cannot leave their own room.
func (h *Handler) Leave(c *gin.Context) {
	room, ok := h.load(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if access.IsOwner(room, userID) {
		response.BadRequest(c, "owner cannot leave the room")
		return
	}
	removed, err := h.store.RemoveParticipant(c.Request.Context(), room.ID, userID)
	if err != nil {
		h.logger.Error("leave room", zap.String("room_id", room.ID.String()), zap.Error(err))
		response.Internal(c, "failed to leave room")
		return
	}
	if !removed {
		response.NotFound(c, "not a participant of this room")
		return
	}
	response.NoContent(c)
}

func (h *Handler) load(c *gin.Context) (*models.Room, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return nil, false
	}
	room, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "room not found")
		} else {
			h.logger.Error("load room", zap.String("room_id", id.String()), zap.Error(err))
			response.Internal(c, "failed to load room")
		}
		return nil, false
	}
	return room, true
}
