package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/ratelimit"
	"github.com/aura-rooms/backend/internal/session"
	"github.com/aura-rooms/backend/pkg/clock"
)

type stubProvider struct {
	mu   sync.Mutex
	live *provider.Status
}

func (p *stubProvider) CreateSession(ctx context.Context, roomID string) (*provider.CreatedSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = &provider.Status{SessionID: "s1", PlaybackID: "p1"}
	return &provider.CreatedSession{
		SessionID:   "s1",
		StreamKey:   "k1",
		PlaybackIDs: []provider.PlaybackID{{ID: "p1"}},
	}, nil
}

func (p *stubProvider) GetSessionStatus(ctx context.Context, roomID string) (*provider.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live == nil {
		return nil, provider.ErrNotFound
	}
	st := *p.live
	return &st, nil
}

func (p *stubProvider) DeleteSession(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = nil
	return nil
}

type stubMembership struct{ room *models.Room }

func (m stubMembership) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	if roomID != m.room.ID {
		return nil, errors.New("no rows")
	}
	return m.room, nil
}

type viewFixture struct {
	server                *httptest.Server
	room                  *models.Room
	owner, member, viewer uuid.UUID

	mu          sync.Mutex
	transitions []session.Transition
}

func newViewFixture(t *testing.T) *viewFixture {
	t.Helper()
	return newViewFixtureWithOrigins(t, "")
}

func newViewFixtureWithOrigins(t *testing.T, origins string) *viewFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &viewFixture{owner: uuid.New(), member: uuid.New(), viewer: uuid.New()}
	f.room = &models.Room{
		ID:      uuid.New(),
		Name:    "late night jazz",
		OwnerID: f.owner,
		Members: []models.Member{{UserID: f.member, Role: models.RoleMember}},
		Viewers: []models.Member{{UserID: f.viewer, Role: models.RoleViewer}},
	}

	chat, err := ratelimit.NewMemory(ratelimit.Policy{Max: 1, Window: time.Minute}, clock.Real())
	require.NoError(t, err)

	router := gin.New()
	router.GET("/ws", ServeWs(ViewDeps{
		Hub:        NewHub(nil, nil, nil),
		Provider:   &stubProvider{},
		Membership: stubMembership{room: f.room},
		Limits:     ratelimit.Set{Chat: chat},
		Validate: func(token string) (Identity, error) {
			id, err := uuid.Parse(token)
			if err != nil {
				return Identity{}, err
			}
			return Identity{UserID: id, DisplayName: "user " + token[:4]}, nil
		},
		PollInterval:   time.Hour,
		AllowedOrigins: origins,
		Observers: []session.Listener{func(tr session.Transition) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.transitions = append(f.transitions, tr)
		}},
	}))
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *viewFixture) url(roomID uuid.UUID, token string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?room_id=" + roomID.String() + "&token=" + token
}

func (f *viewFixture) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.room.ID, userID.String()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil returns the data of the first message matching event and accept.
func readUntil(t *testing.T, conn *websocket.Conn, event string, accept func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event && (accept == nil || accept(msg.Data)) {
			return msg.Data
		}
	}
}

func stateIs(want session.State) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var s session.Snapshot
		return json.Unmarshal(data, &s) == nil && s.State == want
	}
}

func errorCodeOf(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(data, &e))
	return e.Code
}

func TestServeWsRejectsBadRequests(t *testing.T) {
	f := newViewFixture(t)
	tests := map[string]struct {
		url  string
		want int
	}{
		"missing token": {f.url(f.room.ID, ""), http.StatusBadRequest},
		"bad token":     {f.url(f.room.ID, "nope"), http.StatusUnauthorized},
		"unknown room":  {f.url(uuid.New(), f.owner.String()), http.StatusNotFound},
		"stranger":      {f.url(f.room.ID, uuid.New().String()), http.StatusForbidden},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestOwnerView(t *testing.T) {
	f := newViewFixture(t)
	conn := f.dial(t, f.owner)

	data := readUntil(t, conn, EventSessionState, stateIs(session.StateCreated))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "k1", snap.StreamKey, "owner sees the stream key")
	assert.Equal(t, "p1", snap.PlaybackID)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventStreamMarkActive}))
	readUntil(t, conn, EventSessionState, stateIs(session.StateActive))
	readUntil(t, conn, EventOnAir, func(d json.RawMessage) bool {
		return strings.Contains(string(d), `"active":true`)
	})

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventStreamStop}))
	readUntil(t, conn, EventSessionState, stateIs(session.StateUninitialized))
	readUntil(t, conn, EventOnAir, func(d json.RawMessage) bool {
		return strings.Contains(string(d), `"elapsed":"00:00:00"`)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	var path []session.State
	for _, tr := range f.transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []session.State{
		session.StateCreating, session.StateCreated, session.StateActive,
		session.StateStopped, session.StateUninitialized,
	}, path)
}

func TestViewerView(t *testing.T) {
	f := newViewFixture(t)
	conn := f.dial(t, f.viewer)

	data := readUntil(t, conn, EventNotice, nil)
	assert.Contains(t, string(data), "Stream not available")
	readUntil(t, conn, EventSessionState, stateIs(session.StateUninitialized))

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventStreamCreate}))
	data = readUntil(t, conn, EventError, nil)
	assert.Equal(t, "permission_denied", errorCodeOf(t, data))

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventChatMessage, Data: json.RawMessage(`{"text":"hello"}`)}))
	data = readUntil(t, conn, EventError, nil)
	assert.Equal(t, "permission_denied", errorCodeOf(t, data))
}

func TestMemberChat(t *testing.T) {
	f := newViewFixture(t)
	conn := f.dial(t, f.member)
	readUntil(t, conn, EventSessionState, nil)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventChatMessage, Data: json.RawMessage(`{"text":"  hello  "}`)}))
	data := readUntil(t, conn, EventChatMessage, nil)
	var msg struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, f.member.String(), msg.UserID)
	assert.Equal(t, "hello", msg.Text)

	// Over the limit: dropped without an error event, so the next error is the empty message.
	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventChatMessage, Data: json.RawMessage(`{"text":"again"}`)}))
	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventChatMessage, Data: json.RawMessage(`{"text":""}`)}))
	data = readUntil(t, conn, EventError, nil)
	assert.Equal(t, "invalid_message", errorCodeOf(t, data))
}

func TestHeartbeatBroadcastsPresence(t *testing.T) {
	f := newViewFixture(t)
	owner := f.dial(t, f.owner)
	readUntil(t, owner, EventSessionState, stateIs(session.StateCreated))
	viewer := f.dial(t, f.viewer)
	readUntil(t, viewer, EventSessionState, nil)

	require.NoError(t, viewer.WriteJSON(WSMessage{Event: EventHeartbeat}))
	data := readUntil(t, owner, EventPresence, nil)
	assert.Contains(t, string(data), f.viewer.String())
	assert.Contains(t, string(data), `"role":"viewer"`)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "provider_unavailable", errorCode(errors.Join(session.ErrProviderUnavailable, errors.New("x"))))
	assert.Equal(t, "permission_denied", errorCode(session.ErrPermissionDenied))
	assert.Equal(t, "invalid_message", errorCode(errEmptyMessage))
	assert.Equal(t, "internal", errorCode(errors.New("boom")))
}

func TestServeWsChecksOrigin(t *testing.T) {
	f := newViewFixtureWithOrigins(t, "http://app.example")
	dial := func(origin string) (*http.Response, error) {
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(f.url(f.room.ID, f.member.String()), header)
		if conn != nil {
			_ = conn.Close()
		}
		return resp, err
	}

	resp, err := dial("http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err = dial("http://app.example")
	assert.NoError(t, err)
	_, err = dial("")
	assert.NoError(t, err, "non-browser clients send no origin")
}
