package models

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast records one on-air period of a room's live session.
type Broadcast struct {
	ID                uuid.UUID  `json:"id"`
	RoomID            uuid.UUID  `json:"room_id"`
	ProviderSessionID string     `json:"provider_session_id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	PeakListeners     int        `json:"peak_listeners"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Duration returns how long the broadcast was on air, measured to now if still live.
func (b *Broadcast) Duration(now time.Time) time.Duration {
	end := now
	if b.EndedAt != nil {
		end = *b.EndedAt
	}
	if end.Before(b.StartedAt) {
		return 0
	}
	return end.Sub(b.StartedAt)
}
