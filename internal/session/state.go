package session

import (
	"github.com/google/uuid"

	"github.com/aura-rooms/backend/internal/models"
)

// State is a broadcast session's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCreating      State = "creating"
	StateCreated       State = "created"
	StateActive        State = "active"
	StateStopped       State = "stopped" // delete in flight; settles to uninitialized
	StateErrored       State = "errored"
)

func (s State) String() string { return string(s) }

// Live reports whether the session exists at the provider and is being polled.
func (s State) Live() bool {
	return s == StateCreated || s == StateActive
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	RoomID     uuid.UUID `json:"room_id"`
	State      State     `json:"state"`
	SessionID  string    `json:"session_id,omitempty"`
	StreamKey  string    `json:"stream_key,omitempty"`
	PlaybackID string    `json:"playback_id,omitempty"`
	Active     bool      `json:"active"`
	LastError  string    `json:"last_error,omitempty"`
}

// Redacted returns the snapshot without the stream key.
func (s Snapshot) Redacted() Snapshot {
	s.StreamKey = ""
	return s
}

// Transition is emitted to listeners whenever the state changes.
type Transition struct {
	From     State
	To       State
	Role     models.Role // role of the view's user when the transition happened
	Snapshot Snapshot    // session after the transition
}

// Visible returns the snapshot as the view's user may see it.
func (t Transition) Visible() Snapshot {
	if t.Role == models.RoleOwner {
		return t.Snapshot
	}
	return t.Snapshot.Redacted()
}

// Listener receives transitions in order. It must not call Close.
type Listener func(Transition)
