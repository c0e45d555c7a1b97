package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/aura-rooms/backend/internal/models"
)

type fixture struct {
	room                  *models.Room
	owner, member, viewer uuid.UUID
	stranger              uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		owner:    uuid.New(),
		member:   uuid.New(),
		viewer:   uuid.New(),
		stranger: uuid.New(),
	}
	f.room = &models.Room{
		ID:      uuid.New(),
		Name:    "late night jazz",
		OwnerID: f.owner,
		Members: []models.Member{{UserID: f.member, Role: models.RoleMember}},
		Viewers: []models.Member{{UserID: f.viewer, Role: models.RoleViewer}},
	}
	return f
}

func TestRoleOf(t *testing.T) {
	f := newFixture()
	tests := map[string]struct {
		user uuid.UUID
		want models.Role
	}{
		"owner":    {f.owner, models.RoleOwner},
		"member":   {f.member, models.RoleMember},
		"viewer":   {f.viewer, models.RoleViewer},
		"stranger": {f.stranger, models.RoleNone},
		"nil id":   {uuid.Nil, models.RoleNone},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, RoleOf(f.room, tc.user))
		})
	}
}

// RoleOf agrees with the independent predicates for every kind of user.
func TestRoleOfConsistentWithPredicates(t *testing.T) {
	f := newFixture()
	for _, u := range []uuid.UUID{f.owner, f.member, f.viewer, f.stranger} {
		role := RoleOf(f.room, u)
		assert.Equal(t, IsOwner(f.room, u), role == models.RoleOwner)
		assert.Equal(t, IsMember(f.room, u) && !IsOwner(f.room, u), role == models.RoleMember)
		assert.Equal(t, IsViewer(f.room, u) && !IsMember(f.room, u) && !IsOwner(f.room, u), role == models.RoleViewer)
		assert.Equal(t, HasAccess(f.room, u), role != models.RoleNone)
	}
}

func TestOwnerPrecedenceOnInconsistentData(t *testing.T) {
	f := newFixture()
	f.room.Members = append(f.room.Members, models.Member{UserID: f.owner, Role: models.RoleMember})
	f.room.Viewers = append(f.room.Viewers, models.Member{UserID: f.owner, Role: models.RoleViewer})
	f.room.Viewers = append(f.room.Viewers, models.Member{UserID: f.member, Role: models.RoleViewer})

	assert.Equal(t, models.RoleOwner, RoleOf(f.room, f.owner))
	assert.Equal(t, models.RoleMember, RoleOf(f.room, f.member))
}

func TestCanSendMessages(t *testing.T) {
	f := newFixture()
	for _, u := range []uuid.UUID{f.owner, f.member, f.viewer, f.stranger} {
		assert.Equal(t, IsOwner(f.room, u) || IsMember(f.room, u), CanSendMessages(f.room, u))
	}
	assert.False(t, CanSendMessages(f.room, f.viewer), "viewers are read-only")
}

func TestCanManageRoom(t *testing.T) {
	f := newFixture()
	assert.True(t, CanManageRoom(f.room, f.owner))
	assert.False(t, CanManageRoom(f.room, f.member))
	assert.False(t, CanManageRoom(f.room, f.viewer))
}

func TestNilRoom(t *testing.T) {
	u := uuid.New()
	assert.Equal(t, models.RoleNone, RoleOf(nil, u))
	assert.False(t, HasAccess(nil, u))
	assert.False(t, CanSendMessages(nil, u))
	assert.Equal(t, Permissions{Role: models.RoleNone}, PermissionsOf(nil, u))
}

func TestPermissionsOf(t *testing.T) {
	f := newFixture()
	assert.Equal(t, Permissions{Role: models.RoleOwner, HasAccess: true, CanSendMessages: true, CanManageRoom: true}, PermissionsOf(f.room, f.owner))
	assert.Equal(t, Permissions{Role: models.RoleMember, HasAccess: true, CanSendMessages: true}, PermissionsOf(f.room, f.member))
	assert.Equal(t, Permissions{Role: models.RoleViewer, HasAccess: true}, PermissionsOf(f.room, f.viewer))
}

func TestGrantsMatchesPermissionsOf(t *testing.T) {
	f := newFixture()
	for _, id := range []uuid.UUID{f.owner, f.member, f.viewer, uuid.New()} {
		p := PermissionsOf(f.room, id)
		assert.Equal(t, p, Grants(p.Role))
	}
	assert.False(t, Grants(models.RoleNone).HasAccess)
}
