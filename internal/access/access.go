// Package access derives a user's role and permissions from a room snapshot.
// Every function is total: a nil room or unknown user yields RoleNone and no
// permissions, never a panic.
package access

import (
	"github.com/google/uuid"

	"github.com/aura-rooms/backend/internal/models"
)

// Permissions bundles a user's role and every derived permission.
type Permissions struct {
	Role            models.Role `json:"role"`
	HasAccess       bool        `json:"has_access"`
	CanSendMessages bool        `json:"can_send_messages"`
	CanManageRoom   bool        `json:"can_manage_room"`
}

// IsOwner reports whether userID owns the room.
func IsOwner(room *models.Room, userID uuid.UUID) bool {
	return room != nil && userID != uuid.Nil && room.OwnerID == userID
}

// IsMember reports whether userID is listed among the room's members.
func IsMember(room *models.Room, userID uuid.UUID) bool {
	return room != nil && contains(room.Members, userID)
}

// IsViewer reports whether userID is listed among the room's viewers.
func IsViewer(room *models.Room, userID uuid.UUID) bool {
	return room != nil && contains(room.Viewers, userID)
}

// HasAccess reports whether userID holds any role in the room.
func HasAccess(room *models.Room, userID uuid.UUID) bool {
	return RoleOf(room, userID) != models.RoleNone
}

// CanSendMessages reports whether userID may post chat. Viewers are read-only.
func CanSendMessages(room *models.Room, userID uuid.UUID) bool {
	return IsOwner(room, userID) || IsMember(room, userID)
}

// CanManageRoom reports whether userID may run owner-only actions.
func CanManageRoom(room *models.Room, userID uuid.UUID) bool {
	return IsOwner(room, userID)
}

// RoleOf returns the user's role with precedence owner > member > viewer.
// When the snapshot lists a user in more than one place, the highest role wins.
func RoleOf(room *models.Room, userID uuid.UUID) models.Role {
	switch {
	case IsOwner(room, userID):
		return models.RoleOwner
	case IsMember(room, userID):
		return models.RoleMember
	case IsViewer(room, userID):
		return models.RoleViewer
	default:
		return models.RoleNone
	}
}

// PermissionsOf evaluates every permission for userID in one pass.
func PermissionsOf(room *models.Room, userID uuid.UUID) Permissions {
	return Grants(RoleOf(room, userID))
}

// Grants returns the permissions a role carries, for callers that cached the role.
func Grants(role models.Role) Permissions {
	return Permissions{
		Role:            role,
		HasAccess:       role != models.RoleNone,
		CanSendMessages: role == models.RoleOwner || role == models.RoleMember,
		CanManageRoom:   role == models.RoleOwner,
	}
}

func contains(list []models.Member, userID uuid.UUID) bool {
	if userID == uuid.Nil {
		return false
	}
	for _, m := range list {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
