package broadcasts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/internal/session"
)

const writeTimeout = 5 * time.Second

// Store is the broadcast persistence the recorder needs; *Repository implements it.
type Store interface {
	Start(ctx context.Context, roomID uuid.UUID, providerSessionID string) (*models.Broadcast, error)
	End(ctx context.Context, roomID uuid.UUID) error
	UpdatePeakListeners(ctx context.Context, roomID uuid.UUID, count int) error
}

// LiveState records a room's on-air flag.
type LiveState interface {
	SetLiveState(ctx context.Context, roomID uuid.UUID, live bool, sessionID string) error
}

// Recorder persists the owner's session lifecycle: room live flags and broadcast history.
// Transitions seen from member and viewer views are ignored; they mirror the owner's.
type Recorder struct {
	store  Store
	rooms  LiveState
	logger *zap.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, rooms LiveState, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, rooms: rooms, logger: logger}
}

// Observe is a session.Listener.
func (r *Recorder) Observe(tr session.Transition) {
	if tr.Role != models.RoleOwner {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	roomID := tr.Snapshot.RoomID
	log := r.logger.With(zap.String("room_id", roomID.String()), zap.String("state", tr.To.String()))

	if tr.From == session.StateActive && tr.To != session.StateActive {
		if err := r.store.End(ctx, roomID); err != nil {
			log.Warn("end broadcast", zap.Error(err))
		}
	}
	switch tr.To {
	case session.StateActive:
		b, err := r.store.Start(ctx, roomID, tr.Snapshot.SessionID)
		if err != nil {
			log.Warn("start broadcast", zap.Error(err))
		} else {
			log.Info("broadcast started", zap.String("broadcast_id", b.ID.String()))
		}
		r.setLive(ctx, log, roomID, true, tr.Snapshot.SessionID)
	case session.StateUninitialized, session.StateErrored:
		r.setLive(ctx, log, roomID, false, "")
	}
}

// AudienceChanged matches realtime.AudienceChangeHandler and tracks peak listeners.
func (r *Recorder) AudienceChanged(roomID uuid.UUID, count int) {
	if count <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.UpdatePeakListeners(ctx, roomID, count); err != nil {
		r.logger.Warn("update peak listeners", zap.String("room_id", roomID.String()), zap.Error(err))
	}
}

func (r *Recorder) setLive(ctx context.Context, log *zap.Logger, roomID uuid.UUID, live bool, sessionID string) {
	if r.rooms == nil {
		return
	}
	if err := r.rooms.SetLiveState(ctx, roomID, live, sessionID); err != nil {
		log.Warn("set live state", zap.Error(err))
	}
}
