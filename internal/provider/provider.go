// Package provider is the boundary to the external live-video provider.
// Implementations perform no retries; retry policy belongs to the caller.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the provider has no session for the room.
	ErrNotFound = errors.New("provider: session not found")
	// ErrUnavailable wraps transport failures and non-2xx responses other than 404.
	ErrUnavailable = errors.New("provider: unavailable")
)

// PlaybackID identifies one playback endpoint of a live session.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy,omitempty"`
}

// CreatedSession is the provider's answer to CreateSession.
type CreatedSession struct {
	SessionID   string       `json:"session_id"`
	StreamKey   string       `json:"stream_key"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
}

// Status is the provider's view of a room's current session.
type Status struct {
	Active     bool   `json:"is_active"`
	PlaybackID string `json:"playback_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// VideoProvider creates, inspects and deletes live sessions.
type VideoProvider interface {
	CreateSession(ctx context.Context, roomID string) (*CreatedSession, error)
	// GetSessionStatus returns ErrNotFound when the room has no session.
	GetSessionStatus(ctx context.Context, roomID string) (*Status, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
