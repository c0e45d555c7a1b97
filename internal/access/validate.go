package access

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aura-rooms/backend/internal/models"
)

const (
	MinRoomNameLength     = 3
	MaxRoomNameLength     = 50
	MinRoomPasswordLength = 4
	MaxRoomPasswordLength = 20
)

// ValidateRoomName returns "" when name is acceptable, otherwise a reason.
// Length is counted in characters after trimming surrounding whitespace.
func ValidateRoomName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Room name is required"
	}
	n := utf8.RuneCountInString(trimmed)
	if n < MinRoomNameLength {
		return fmt.Sprintf("Room name must be at least %d characters", MinRoomNameLength)
	}
	if n > MaxRoomNameLength {
		return fmt.Sprintf("Room name must be at most %d characters", MaxRoomNameLength)
	}
	return ""
}

// ValidateRoomPassword returns "" when password is acceptable, otherwise a reason.
// An empty password means the room has no password.
func ValidateRoomPassword(password string) string {
	if password == "" {
		return ""
	}
	n := utf8.RuneCountInString(password)
	if n < MinRoomPasswordLength {
		return fmt.Sprintf("Password must be at least %d characters", MinRoomPasswordLength)
	}
	if n > MaxRoomPasswordLength {
		return fmt.Sprintf("Password must be at most %d characters", MaxRoomPasswordLength)
	}
	return ""
}

// ValidateCapacity returns "" when a user may join the room as role, otherwise a reason.
// A zero limit means unlimited.
func ValidateCapacity(room *models.Room, role models.Role) string {
	if room == nil {
		return "Room not found"
	}
	switch role {
	case models.RoleMember:
		if room.MaxMembers > 0 && len(room.Members) >= room.MaxMembers {
			return "Room is full"
		}
	case models.RoleViewer:
		if room.MaxViewers > 0 && len(room.Viewers) >= room.MaxViewers {
			return "Room has reached its viewer limit"
		}
	default:
		return "Invalid role"
	}
	return ""
}
