package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasRole(t *testing.T) {
	admin := &Identity{UID: "u1", Role: RoleAdmin}
	assert.True(t, admin.HasRole(RoleAdmin, RoleStaff))
	assert.False(t, admin.HasRole(RoleClient))

	var nobody *Identity
	assert.False(t, nobody.HasRole(RoleAdmin))
	assert.False(t, (&Identity{UID: "u2"}).HasRole(RoleGuest))
}

func TestActor(t *testing.T) {
	assert.Equal(t, "u1", (&Identity{UID: "u1", Email: "a@b.co"}).Actor())
	assert.Equal(t, "a@b.co", (&Identity{Email: "a@b.co"}).Actor())
	assert.Equal(t, "manual", (&Identity{}).Actor())

	var nobody *Identity
	assert.Equal(t, "manual", nobody.Actor())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("owner").Valid())
}
