// Package session coordinates one live-broadcast session for one room view:
// creation at the provider, status polling, activation and teardown.
//
// A Session is owned by exactly one room view. State is guarded by a mutex that
// is never held across provider calls; each call is tagged with the session id
// and a generation counter so responses that arrive after a stop, a
// re-creation or Close are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/access"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/ratelimit"
	"github.com/aura-rooms/backend/pkg/clock"
)

const (
	// DefaultPollInterval is how often Created and Active sessions are checked.
	DefaultPollInterval = 5 * time.Second

	discardTimeout      = 10 * time.Second
	deleteRetryInterval = time.Second
	deleteRetryTimeout  = 10 * time.Minute
)

// MembershipSource supplies room snapshots on demand.
type MembershipSource interface {
	Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
}

// Config holds a Session's collaborators. Provider and Membership are required.
type Config struct {
	RoomID     uuid.UUID
	UserID     uuid.UUID
	Provider   provider.VideoProvider
	Membership MembershipSource
	// StatusLimiter gates status polls, keyed per room. Nil disables the check.
	StatusLimiter ratelimit.Limiter
	// OpsLimiter gates provider create/delete calls, keyed per room. Nil disables the check.
	OpsLimiter   ratelimit.Limiter
	Notifier     Notifier
	Clock        clock.Clock
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Session is the broadcast lifecycle of one room as seen by one user.
type Session struct {
	roomID     uuid.UUID
	userID     uuid.UUID
	provider   provider.VideoProvider
	membership MembershipSource
	statusLim  ratelimit.Limiter
	opsLim     ratelimit.Limiter
	notifier   Notifier
	clock      clock.Clock
	interval   time.Duration
	logger     *zap.Logger

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	role       models.Role
	opened     bool
	closed     bool
	state      State
	sessionID  string
	streamKey  string
	playbackID string
	lastErr    error
	gen        uint64
	polling    bool
	pollCancel context.CancelFunc
	noticed    bool // "stream not available" already shown for the current gap
	listeners  []Listener
	pending    []Transition

	emitMu sync.Mutex
}

// New creates a Session in StateUninitialized. Call Open to start it and Close to release it.
func New(cfg Config) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: provider required")
	}
	if cfg.Membership == nil {
		return nil, fmt.Errorf("session: membership source required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewLogNotifier(cfg.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		roomID:     cfg.RoomID,
		userID:     cfg.UserID,
		provider:   cfg.Provider,
		membership: cfg.Membership,
		statusLim:  cfg.StatusLimiter,
		opsLim:     cfg.OpsLimiter,
		notifier:   cfg.Notifier,
		clock:      cfg.Clock,
		interval:   cfg.PollInterval,
		logger: cfg.Logger.With(
			zap.String("room_id", cfg.RoomID.String()),
			zap.String("user_id", cfg.UserID.String()),
		),
		ctx:    ctx,
		cancel: cancel,
		state:  StateUninitialized,
	}, nil
}

// OnTransition registers a listener for state changes.
func (s *Session) OnTransition(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.listeners = append(s.listeners, l)
}

// Role returns the user's role as of the last membership lookup.
func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Snapshot returns a copy of the current session, stream key included.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// View returns the session as the view's user may see it: only the owner sees the stream key.
func (s *Session) View() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if s.role != models.RoleOwner {
		snap = snap.Redacted()
	}
	return snap
}

// Open resolves the user's role and performs the initial status check.
// An owner whose room has no session gets one created; anyone else is told
// the stream is not available and keeps watching for one to appear.
func (s *Session) Open(ctx context.Context) error {
	role, err := s.resolveRole(ctx)
	if err != nil {
		return err
	}
	if role == models.RoleNone {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opened {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.opened = true
	if role != models.RoleOwner {
		s.startPollingLocked()
	}
	s.mu.Unlock()

	s.logger.Debug("room view opened", zap.String("role", string(role)))
	err = s.poll(ctx, true)
	if errors.Is(err, ratelimit.ErrRateLimited) || errors.Is(err, ErrInProgress) {
		return nil
	}
	return err
}

// Create requests a new provider session. Owner only; allowed from
// Uninitialized or Errored.
func (s *Session) Create(ctx context.Context) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	st := s.state
	s.mu.Unlock()
	switch st {
	case StateUninitialized, StateErrored:
	case StateCreating, StateStopped:
		return ErrInProgress
	default:
		return ErrInvalidState
	}
	return s.createGated(ctx)
}

// MarkActive records the owner's signal that media is flowing. Owner only; from Created.
func (s *Session) MarkActive(ctx context.Context) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state {
	case StateActive:
		s.mu.Unlock()
		return nil
	case StateCreated:
		s.setStateLocked(StateActive)
		s.mu.Unlock()
		s.flush()
		s.logger.Info("session marked active", zap.String("session_id", s.Snapshot().SessionID))
		return nil
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
}

// Stop deletes the provider session and resets to Uninitialized. Owner only.
// Local state is reset even when the delete fails; the failure is returned
// and a notice is pushed. A delete rejected by the ops limiter is retried in
// the background once the limiter admits it, and Stop reports success.
func (s *Session) Stop(ctx context.Context) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrInProgress
	}
	s.gen++
	gen := s.gen
	sessionID := s.sessionID
	s.stopPollingLocked()
	s.setStateLocked(StateStopped)
	s.mu.Unlock()
	s.flush()

	var err error
	switch {
	case sessionID == "":
	case !s.allow(ctx, s.opsLim, "ops"):
		s.deferDelete(sessionID)
	default:
		dctx, cancel := s.bind(ctx)
		err = s.provider.DeleteSession(dctx, sessionID)
		cancel()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.gen == gen {
		s.clearLocked()
		if err != nil {
			s.lastErr = fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		s.setStateLocked(StateUninitialized)
	}
	s.mu.Unlock()
	s.flush()

	if err != nil {
		s.logger.Warn("delete session failed", zap.String("session_id", sessionID), zap.Error(err))
		s.notifier.Notify(s.roomID, NoticeStopFailed)
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	s.logger.Info("session stopped", zap.String("session_id", sessionID))
	return nil
}

// Poll runs one status check now. It is a no-op outside the states that are
// polled, returns ErrInProgress if a check is already pending and
// ratelimit.ErrRateLimited if the status limiter rejects it.
func (s *Session) Poll(ctx context.Context) error {
	return s.poll(ctx, false)
}

// Close cancels polling and in-flight provider calls. No state changes or
// notifications happen afterwards. Close blocks until the poll loop exits.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.stopPollingLocked()
	s.listeners = nil
	s.pending = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Debug("room view closed")
}

func (s *Session) createGated(ctx context.Context) error {
	if !s.allow(ctx, s.opsLim, "ops") {
		return ratelimit.ErrRateLimited
	}
	return s.create(ctx)
}

func (s *Session) create(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateCreating || s.state == StateStopped {
		s.mu.Unlock()
		return ErrInProgress
	}
	s.gen++
	gen := s.gen
	s.clearLocked()
	s.setStateLocked(StateCreating)
	s.mu.Unlock()
	s.flush()

	cctx, cancel := s.bind(ctx)
	created, err := s.provider.CreateSession(cctx, s.roomID.String())
	cancel()

	s.mu.Lock()
	if s.closed || s.gen != gen {
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return ErrClosed
		}
		if err == nil && created != nil && created.SessionID != "" {
			s.discard(created.SessionID)
		}
		return ErrSuperseded
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		s.lastErr = wrapped
		s.setStateLocked(StateErrored)
		s.mu.Unlock()
		s.flush()
		s.logger.Warn("create session failed", zap.Error(err))
		return wrapped
	}
	playbackID := firstPlaybackID(created)
	if created == nil || created.SessionID == "" || created.StreamKey == "" || playbackID == "" {
		s.lastErr = ErrInvalidProviderResponse
		s.setStateLocked(StateErrored)
		s.mu.Unlock()
		s.flush()
		s.logger.Warn("provider returned incomplete session")
		return ErrInvalidProviderResponse
	}
	s.sessionID = created.SessionID
	s.streamKey = created.StreamKey
	s.playbackID = playbackID
	s.noticed = false
	s.setStateLocked(StateCreated)
	s.startPollingLocked()
	s.mu.Unlock()
	s.flush()

	s.logger.Info("session created", zap.String("session_id", created.SessionID), zap.String("playback_id", playbackID))
	return nil
}

// poll performs one status check. When opening, an owner without a session is
// also eligible so that a missing session gets created.
func (s *Session) poll(ctx context.Context, opening bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.pollableLocked(opening) {
		s.mu.Unlock()
		return nil
	}
	if s.polling {
		s.mu.Unlock()
		return ErrInProgress
	}
	s.polling = true
	gen, sessionID, role := s.gen, s.sessionID, s.role
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	if !s.allow(ctx, s.statusLim, "status") {
		return ratelimit.ErrRateLimited
	}

	pctx, cancel := s.bind(ctx)
	status, err := s.provider.GetSessionStatus(pctx, s.roomID.String())
	cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.gen != gen || s.sessionID != sessionID {
		s.mu.Unlock()
		return ErrSuperseded
	}

	switch {
	case errors.Is(err, provider.ErrNotFound):
		if role == models.RoleOwner {
			s.mu.Unlock()
			if sessionID != "" {
				s.logger.Info("provider lost session, recreating", zap.String("session_id", sessionID))
			}
			return s.createGated(ctx)
		}
		notify := !s.noticed
		s.noticed = true
		if s.state != StateUninitialized {
			s.clearLocked()
			s.setStateLocked(StateUninitialized)
		}
		s.mu.Unlock()
		s.flush()
		if notify {
			s.notifier.Notify(s.roomID, NoticeStreamUnavailable)
		}
		return nil
	case err != nil:
		s.mu.Unlock()
		s.logger.Warn("status check failed", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	if status == nil {
		status = &provider.Status{}
	}
	// The owner creates every session it holds, so a status naming another
	// session is a late answer about one it already replaced.
	if role == models.RoleOwner && sessionID != "" && status.SessionID != "" && status.SessionID != sessionID {
		s.mu.Unlock()
		s.logger.Debug("dropping status for replaced session",
			zap.String("session_id", sessionID), zap.String("reported", status.SessionID))
		return ErrSuperseded
	}
	s.applyStatusLocked(status, role)
	s.mu.Unlock()
	s.flush()
	return nil
}

func (s *Session) pollableLocked(opening bool) bool {
	if s.role == models.RoleOwner {
		return s.state.Live() || (opening && s.state == StateUninitialized)
	}
	return s.state != StateCreating && s.state != StateStopped
}

// applyStatusLocked folds a provider status into local state. The provider's
// activity flag promotes anyone to Active; only non-owners are demoted by it,
// since the owner's MarkActive is authoritative for the owner's view.
func (s *Session) applyStatusLocked(st *provider.Status, role models.Role) {
	if st.SessionID != "" && st.SessionID != s.sessionID {
		if s.sessionID != "" {
			s.streamKey = ""
		}
		s.sessionID = st.SessionID
	}
	if st.PlaybackID != "" {
		s.playbackID = st.PlaybackID
	}
	s.noticed = false

	switch {
	case st.Active:
		s.setStateLocked(StateActive)
	case s.state == StateActive && role != models.RoleOwner:
		s.setStateLocked(StateCreated)
	case s.state == StateUninitialized:
		s.setStateLocked(StateCreated)
	}
	s.startPollingLocked()
}

func (s *Session) startPollingLocked() {
	if s.pollCancel != nil || s.closed {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.pollCancel = cancel
	ticker := s.clock.NewTicker(s.interval)
	s.wg.Add(1)
	go s.pollLoop(ctx, ticker)
}

func (s *Session) stopPollingLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

// pollLoop runs checks until ctx is cancelled. A check finishes before the
// next tick is read, so checks never overlap; ticks during a slow check are dropped.
func (s *Session) pollLoop(ctx context.Context, ticker clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			err := s.poll(ctx, false)
			switch {
			case err == nil,
				errors.Is(err, ErrProviderUnavailable): // already logged
			case errors.Is(err, ratelimit.ErrRateLimited):
				s.logger.Debug("status check skipped by rate limiter")
			default:
				s.logger.Debug("status check", zap.Error(err))
			}
		}
	}
}

func (s *Session) requireOwner(ctx context.Context) error {
	role, err := s.resolveRole(ctx)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Session) resolveRole(ctx context.Context) (models.Role, error) {
	room, err := s.membership.Snapshot(ctx, s.roomID)
	if err != nil {
		return models.RoleNone, fmt.Errorf("load room: %w", err)
	}
	role := access.RoleOf(room, s.userID)
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
	return role, nil
}

func (s *Session) allow(ctx context.Context, l ratelimit.Limiter, kind string) bool {
	if l == nil {
		return true
	}
	return l.Allow(ctx, ratelimit.Key(kind, s.roomID.String()))
}

// bind derives a context that is also cancelled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// discard deletes a session whose creation was superseded by a stop.
func (s *Session) discard(sessionID string) {
	s.logger.Info("discarding superseded session", zap.String("session_id", sessionID))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
		defer cancel()
		if err := s.provider.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("discard session failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

// deferDelete deletes sessionID once the ops limiter admits it, checking every
// deleteRetryInterval for at most deleteRetryTimeout. It outlives Close.
func (s *Session) deferDelete(sessionID string) {
	s.logger.Info("stop rate limited, delete deferred", zap.String("session_id", sessionID))
	ticker := s.clock.NewTicker(deleteRetryInterval)
	deadline := s.clock.Now().Add(deleteRetryTimeout)
	go func() {
		defer ticker.Stop()
		for range ticker.C() {
			if s.allow(context.Background(), s.opsLim, "ops") {
				break
			}
			if !s.clock.Now().Before(deadline) {
				s.logger.Warn("deferred delete abandoned", zap.String("session_id", sessionID))
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
		defer cancel()
		if err := s.provider.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("deferred delete failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		s.logger.Info("deferred delete done", zap.String("session_id", sessionID))
	}()
}

func (s *Session) clearLocked() {
	s.sessionID = ""
	s.streamKey = ""
	s.playbackID = ""
	s.lastErr = nil
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	s.state = to
	if from == to {
		return
	}
	s.pending = append(s.pending, Transition{
		From:     from,
		To:       to,
		Role:     s.role,
		Snapshot: s.snapshotLocked(),
	})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomID:     s.roomID,
		State:      s.state,
		SessionID:  s.sessionID,
		StreamKey:  s.streamKey,
		PlaybackID: s.playbackID,
		Active:     s.state == StateActive,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// flush delivers pending transitions in order. Only one goroutine delivers at
// a time; a concurrent caller leaves its transitions to the active one.
func (s *Session) flush() {
	for {
		if !s.emitMu.TryLock() {
			return
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			tr := s.pending[0]
			s.pending = s.pending[1:]
			listeners := append([]Listener(nil), s.listeners...)
			s.mu.Unlock()
			for _, l := range listeners {
				l(tr)
			}
		}
		s.emitMu.Unlock()

		s.mu.Lock()
		more := len(s.pending) > 0
		s.mu.Unlock()
		if !more {
			return
		}
	}
}

func firstPlaybackID(c *provider.CreatedSession) string {
	if c == nil {
		return ""
	}
	for _, p := range c.PlaybackIDs {
		if p.ID != "" {
			return p.ID
		}
	}
	return ""
}
