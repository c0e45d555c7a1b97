// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/rooms"
	"github.com/aura-rooms/backend/pkg/clock"
)

// DefaultReconcileInterval is used when the configured interval is not positive.
const DefaultReconcileInterval = time.Minute

// LiveRooms lists and updates rooms flagged as on air; *rooms.Repository implements it.
type LiveRooms interface {
	ListLive(ctx context.Context) ([]rooms.LiveRoom, error)
	SetLiveState(ctx context.Context, roomID uuid.UUID, live bool, sessionID string) error
}

// BroadcastEnder closes a room's open broadcast; *broadcasts.Repository implements it.
type BroadcastEnder interface {
	End(ctx context.Context, roomID uuid.UUID) error
}

// Reconciler clears the live flag of rooms whose provider session is gone,
// e.g. after the owner's connection dropped without a stop.
type Reconciler struct {
	rooms      LiveRooms
	broadcasts BroadcastEnder
	provider   provider.VideoProvider
	clock      clock.Clock
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconciler creates a live-state reconciler.
func NewReconciler(liveRooms LiveRooms, ender BroadcastEnder, p provider.VideoProvider, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{rooms: liveRooms, broadcasts: ender, provider: p, clock: clk, interval: interval, logger: logger}
}

// RunOnce checks every live room and returns how many were cleared.
// Rooms whose status check fails for any reason other than not-found are left alone.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	live, err := r.rooms.ListLive(ctx)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, lr := range live {
		if ctx.Err() != nil {
			return cleared, ctx.Err()
		}
		st, err := r.provider.GetSessionStatus(ctx, lr.ID.String())
		switch {
		case errors.Is(err, provider.ErrNotFound):
		case err != nil:
			r.logger.Warn("status check failed", zap.String("room_id", lr.ID.String()), zap.Error(err))
			continue
		case st != nil && (st.SessionID == "" || st.SessionID == lr.SessionID):
			continue
		}

		if err := r.rooms.SetLiveState(ctx, lr.ID, false, ""); err != nil {
			r.logger.Error("clear live state", zap.String("room_id", lr.ID.String()), zap.Error(err))
			continue
		}
		if err := r.broadcasts.End(ctx, lr.ID); err != nil {
			r.logger.Warn("end broadcast", zap.String("room_id", lr.ID.String()), zap.Error(err))
		}
		cleared++
		r.logger.Info("cleared stale live room", zap.String("room_id", lr.ID.String()), zap.String("session_id", lr.SessionID))
	}
	return cleared, nil
}

// Run reconciles on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C():
			if n, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("reconcile failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("reconcile pass", zap.Int("cleared", n))
			}
		}
	}
}
