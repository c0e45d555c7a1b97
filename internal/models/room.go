package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role is a participant's role within a single room.
type Role string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of owner, member or viewer.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMember || r == RoleViewer
}

// Member is a room-scoped participant record.
type Member struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Room is a read-only projection of a room and its participants.
// A user ID appears in at most one of OwnerID, Members and Viewers.
type Room struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	OwnerID            uuid.UUID       `json:"owner_id"`
	Members            []Member        `json:"members"`
	Viewers            []Member        `json:"viewers"`
	IsPrivate          bool            `json:"is_private"`
	PasswordHash       string          `json:"-"`
	MaxMembers         int             `json:"max_members"`
	MaxViewers         int             `json:"max_viewers"`
	IsLive             bool            `json:"is_live"`
	IsRecording        bool            `json:"is_recording"`
	CurrentSessionID   string          `json:"current_session_id,omitempty"`
	CurrentRecordingID string          `json:"current_recording_id,omitempty"`
	Style              json.RawMessage `json:"style,omitempty"`
	Category           string          `json:"category,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HasPassword reports whether joining the room requires a password.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}
