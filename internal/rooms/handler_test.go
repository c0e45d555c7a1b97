package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-rooms/backend/internal/access"
	"github.com/aura-rooms/backend/internal/middleware"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/pkg/utils"
)

type memStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[uuid.UUID]*models.Room)}
}

func (s *memStore) Create(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room.ID = uuid.New()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Members = append([]models.Member(nil), r.Members...)
	cp.Viewers = append([]models.Member(nil), r.Viewers...)
	return &cp, nil
}

func (s *memStore) AddParticipant(_ context.Context, roomID uuid.UUID, m models.Member) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[roomID]
	if access.HasAccess(r, m.UserID) {
		return false, nil
	}
	if m.Role == models.RoleMember {
		r.Members = append(r.Members, m)
	} else {
		r.Viewers = append(r.Viewers, m)
	}
	return true, nil
}

func (s *memStore) RemoveParticipant(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[roomID]
	for i, m := range r.Members {
		if m.UserID == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true, nil
		}
	}
	for i, m := range r.Viewers {
		if m.UserID == userID {
			r.Viewers = append(r.Viewers[:i], r.Viewers[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type env struct {
	router *gin.Engine
	store  *memStore
}

func newEnv() *env {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	h := NewHandler(store, nil)
	router := gin.New()
	// stands in for the JWT middleware: the caller's id comes from X-User
	authed := router.Group("/", func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-User"))
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextUserID, id)
		c.Set(middleware.ContextDisplayName, "user")
	})
	authed.POST("/rooms", h.Create)
	authed.GET("/rooms/:id", h.GetByID)
	authed.GET("/rooms/:id/access", h.Access)
	authed.POST("/rooms/:id/join", h.Join)
	authed.POST("/rooms/:id/leave", h.Leave)
	return &env{router: router, store: store}
}

func (e *env) do(t *testing.T, method, path string, user uuid.UUID, body string) (int, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User", user.String())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (e *env) createRoom(t *testing.T, owner uuid.UUID, body string) uuid.UUID {
	t.Helper()
	code, out := e.do(t, http.MethodPost, "/rooms", owner, body)
	require.Equal(t, http.StatusCreated, code, out)
	data := out["data"].(map[string]interface{})
	id, err := uuid.Parse(data["id"].(string))
	require.NoError(t, err)
	return id
}

func TestCreateValidates(t *testing.T) {
	e := newEnv()
	owner := uuid.New()
	tests := map[string]struct {
		body string
		want int
	}{
		"ok":             {`{"name":"late night jazz"}`, http.StatusCreated},
		"short name":     {`{"name":"  ab  "}`, http.StatusBadRequest},
		"short password": {`{"name":"jazz","password":"abc"}`, http.StatusBadRequest},
		"with password":  {`{"name":"jazz","password":"abcd","is_private":true}`, http.StatusCreated},
		"negative cap":   {`{"name":"jazz","max_members":-1}`, http.StatusBadRequest},
		"no body":        {``, http.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, _ := e.do(t, http.MethodPost, "/rooms", owner, tc.body)
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestCreateHashesPassword(t *testing.T) {
	e := newEnv()
	owner := uuid.New()
	id := e.createRoom(t, owner, `{"name":"  jazz  ","password":"s3cret","is_private":true}`)

	room, err := e.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "jazz", room.Name)
	assert.Equal(t, owner, room.OwnerID)
	assert.NotEqual(t, "s3cret", room.PasswordHash)
	assert.True(t, utils.CheckPassword("s3cret", room.PasswordHash))

	_, out := e.do(t, http.MethodGet, "/rooms/"+id.String(), owner, "")
	data := out["data"].(map[string]interface{})
	assert.NotContains(t, data, "password_hash")
	assert.NotContains(t, data, "PasswordHash")
}

func TestJoinFlow(t *testing.T) {
	e := newEnv()
	owner, alice, bob := uuid.New(), uuid.New(), uuid.New()
	id := e.createRoom(t, owner, `{"name":"jazz","password":"s3cret","is_private":true,"max_members":1}`)
	base := "/rooms/" + id.String()

	code, _ := e.do(t, http.MethodPost, base+"/join", alice, `{"as":"member","password":"wrong"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, out := e.do(t, http.MethodPost, base+"/join", alice, `{"as":"member","password":"s3cret"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, out["data"].(map[string]interface{})["can_send_messages"])

	code, _ = e.do(t, http.MethodPost, base+"/join", alice, `{"as":"viewer","password":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, code, "already a participant")

	code, _ = e.do(t, http.MethodPost, base+"/join", bob, `{"as":"member","password":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, code, "member capacity reached")

	code, _ = e.do(t, http.MethodPost, base+"/join", bob, `{"password":"s3cret"}`)
	assert.Equal(t, http.StatusCreated, code, "defaults to viewer")

	code, out = e.do(t, http.MethodGet, base+"/access", bob, "")
	require.Equal(t, http.StatusOK, code)
	perms := out["data"].(map[string]interface{})
	assert.Equal(t, "viewer", perms["role"])
	assert.Equal(t, false, perms["can_send_messages"])

	code, _ = e.do(t, http.MethodPost, base+"/join", owner, `{"as":"viewer","password":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, code, "owner is already in the room")

	code, _ = e.do(t, http.MethodPost, base+"/join", uuid.New(), `{"as":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLeave(t *testing.T) {
	e := newEnv()
	owner, alice := uuid.New(), uuid.New()
	id := e.createRoom(t, owner, `{"name":"jazz"}`)
	base := "/rooms/" + id.String()

	code, _ := e.do(t, http.MethodPost, base+"/join", alice, "")
	require.Equal(t, http.StatusCreated, code)

	code, _ = e.do(t, http.MethodPost, base+"/leave", alice, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = e.do(t, http.MethodPost, base+"/leave", alice, "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodPost, base+"/leave", owner, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUnknownRoom(t *testing.T) {
	e := newEnv()
	code, _ := e.do(t, http.MethodGet, "/rooms/"+uuid.New().String(), uuid.New(), "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodGet, "/rooms/nope", uuid.New(), "")
	assert.Equal(t, http.StatusBadRequest, code)
}
