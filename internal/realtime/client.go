package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-rooms/backend/internal/access"
	"github.com/aura-rooms/backend/internal/middleware"
	"github.com/aura-rooms/backend/internal/presence"
	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/ratelimit"
	"github.com/aura-rooms/backend/internal/session"
	"github.com/aura-rooms/backend/pkg/clock"
)

// Server -> client events.
const (
	EventSessionState  = "session_state"
	EventOnAir         = "on_air"
	EventNotice        = "notice"
	EventError         = "error"
	EventChatMessage   = "chat_message"
	EventPresence      = "presence"
	EventAudienceCount = "audience_count"
)

// Client -> server events.
const (
	EventStreamCreate     = "stream_create"
	EventStreamMarkActive = "stream_mark_active"
	EventStreamStop       = "stream_stop"
	EventHeartbeat        = "heartbeat"
)

const (
	maxChatLength = 1000
	sendBuffer    = 256
)

// newUpgrader accepts browser handshakes only from allowedOrigins (same format as CORS_ALLOWED_ORIGINS).
func newUpgrader(allowedOrigins string) *websocket.Upgrader {
	allowed := middleware.OriginChecker(allowedOrigins)
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowed(r.Header.Get("Origin"))
		},
	}
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	AvatarURL   string
}

// TokenValidator resolves a bearer token to an identity.
type TokenValidator func(token string) (Identity, error)

// ViewDeps are the collaborators shared by every room view.
type ViewDeps struct {
	Hub          *Hub
	Provider     provider.VideoProvider
	Membership   session.MembershipSource
	Limits       ratelimit.Set
	Validate     TokenValidator
	PollInterval time.Duration
	Clock        clock.Clock
	// Observers receive every session transition of every view, e.g. to persist live state.
	Observers []session.Listener
	// AllowedOrigins restricts browser handshakes; "" or "*" allows every origin.
	AllowedOrigins string
	Logger         *zap.Logger
}

// Client represents a single WebSocket connection: one user's view of one room.
type Client struct {
	ID       string
	RoomID   uuid.UUID
	Identity Identity
	JoinedAt time.Time

	hub     *Hub
	conn    *websocket.Conn
	send    chan WSMessage
	done    chan struct{}
	session *session.Session
	tracker *presence.Tracker
	limits  ratelimit.Set
	logger  *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the room view until the connection closes.
func ServeWs(deps ViewDeps) gin.HandlerFunc {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	upgrader := newUpgrader(deps.AllowedOrigins)
	return func(c *gin.Context) {
		roomIDStr := c.Query("room_id")
		token := c.Query("token")
		if roomIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room_id and token required"})
			return
		}
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		id, err := deps.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		room, err := deps.Membership.Snapshot(c.Request.Context(), roomID)
		if err != nil || room == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if !access.HasAccess(room, id.UserID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this room"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			RoomID:   roomID,
			Identity: id,
			JoinedAt: time.Now(),
			hub:      deps.Hub,
			conn:     conn,
			send:     make(chan WSMessage, sendBuffer),
			done:     make(chan struct{}),
			limits:   deps.Limits,
			logger: logger.With(
				zap.String("room_id", roomID.String()),
				zap.String("user_id", id.UserID.String()),
			),
		}
		if err := client.open(deps, clk); err != nil {
			client.logger.Warn("room view setup failed", zap.Error(err))
			_ = conn.Close()
			return
		}
		client.run()
	}
}

// open builds the view's session and tracker and registers the client.
func (c *Client) open(deps ViewDeps, clk clock.Clock) error {
	c.tracker = presence.NewTracker(clk, func(display string) {
		c.emit(EventOnAir, map[string]interface{}{
			"active":  c.tracker.Active(),
			"elapsed": display,
		})
	})
	s, err := session.New(session.Config{
		RoomID:        c.RoomID,
		UserID:        c.Identity.UserID,
		Provider:      deps.Provider,
		Membership:    deps.Membership,
		StatusLimiter: deps.Limits.Status,
		OpsLimiter:    deps.Limits.StreamOps,
		Notifier:      c,
		Clock:         clk,
		PollInterval:  deps.PollInterval,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.session = s
	for _, o := range deps.Observers {
		s.OnTransition(o)
	}
	s.OnTransition(func(tr session.Transition) {
		c.emit(EventSessionState, tr.Visible())
		c.tracker.Observe(tr)
	})
	c.hub.Register(c)
	return nil
}

func (c *Client) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.session.Close()
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	go c.writePump()
	go c.tracker.Run(ctx)

	if err := c.session.Open(ctx); err != nil {
		c.logger.Info("room view open", zap.Error(err))
		c.emitError("open", err)
		if errors.Is(err, session.ErrPermissionDenied) {
			return
		}
	}
	c.emit(EventSessionState, c.session.View())
	c.hub.BroadcastToRoomAndPublish(c.RoomID, EventAudienceCount, map[string]int{
		"count": c.hub.AudienceCount(c.RoomID),
	})

	c.readPump(ctx)
}

// Notify implements session.Notifier by pushing a notice to this connection.
func (c *Client) Notify(_ uuid.UUID, message string) {
	c.emit(EventNotice, map[string]string{"message": message})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg WSMessage) {
	var err error
	switch msg.Event {
	case EventStreamCreate:
		err = c.session.Create(ctx)
	case EventStreamMarkActive:
		err = c.session.MarkActive(ctx)
	case EventStreamStop:
		err = c.session.Stop(ctx)
	case EventChatMessage:
		err = c.chat(ctx, msg.Data)
	case EventHeartbeat:
		c.heartbeat(ctx)
	default:
		// ignore
	}
	switch {
	case err == nil:
	case errors.Is(err, ratelimit.ErrRateLimited):
		c.logger.Debug("dropped by rate limiter", zap.String("event", msg.Event))
	default:
		c.emitError(msg.Event, err)
	}
}

var errEmptyMessage = errors.New("message must be 1 to 1000 characters")

// chat relays a message to the room. Permission uses the role cached by the
// session's last membership lookup.
func (c *Client) chat(ctx context.Context, data json.RawMessage) error {
	if !access.Grants(c.session.Role()).CanSendMessages {
		return session.ErrPermissionDenied
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return errEmptyMessage
	}
	text := strings.TrimSpace(in.Text)
	if text == "" || utf8.RuneCountInString(text) > maxChatLength {
		return errEmptyMessage
	}
	if !allow(ctx, c.limits.Chat, "chat", c.RoomID.String(), c.Identity.UserID.String()) {
		return ratelimit.ErrRateLimited
	}
	c.hub.PublishToRoomOnly(c.RoomID, EventChatMessage, map[string]interface{}{
		"id":           uuid.New().String(),
		"user_id":      c.Identity.UserID.String(),
		"display_name": c.Identity.DisplayName,
		"avatar_url":   c.Identity.AvatarURL,
		"text":         text,
		"sent_at":      time.Now().UTC(),
	})
	return nil
}

// heartbeat announces presence; extra heartbeats inside the window are dropped silently.
func (c *Client) heartbeat(ctx context.Context) {
	if !allow(ctx, c.limits.Heartbeat, "heartbeat", c.RoomID.String(), c.Identity.UserID.String()) {
		return
	}
	c.hub.BroadcastToRoomAndPublish(c.RoomID, EventPresence, map[string]interface{}{
		"user_id":      c.Identity.UserID.String(),
		"display_name": c.Identity.DisplayName,
		"role":         c.session.Role(),
		"at":           time.Now().UTC(),
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain writes whatever is still queued, e.g. the error that closed the view.
func (c *Client) drain() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// emit queues an event for this connection only.
func (c *Client) emit(event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		c.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(WSMessage{Event: event, Data: data})
}

func (c *Client) emitError(event string, err error) {
	c.emit(EventError, map[string]string{
		"event":   event,
		"code":    errorCode(err),
		"message": err.Error(),
	})
}

// enqueue never blocks; a full buffer drops the message.
func (c *Client) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("send buffer full, dropping", zap.String("event", msg.Event))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, session.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, session.ErrInProgress):
		return "in_progress"
	case errors.Is(err, session.ErrInvalidProviderResponse):
		return "invalid_provider_response"
	case errors.Is(err, session.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, errEmptyMessage):
		return "invalid_message"
	default:
		return "internal"
	}
}

func allow(ctx context.Context, l ratelimit.Limiter, parts ...string) bool {
	if l == nil {
		return true
	}
	return l.Allow(ctx, ratelimit.Key(parts...))
}
