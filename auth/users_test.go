package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/rental-ledger/config"
)

func TestHashPassword(t *testing.T) {
	// sha256("admin")
	assert.Equal(t, "8c6976e5b5410415bde908bd4dee15dfb167a9c873fc4bb8a81f6f2ab448a918", HashPassword("admin"))
}

func TestDirectory_Authenticate(t *testing.T) {
	dir := NewDirectory(map[string]config.User{
		"Maria": {PasswordHash: HashPassword("s3cret"), Role: "editor"},
	})
	assert.True(t, dir.Enabled())

	role, ok := dir.Authenticate("maria", "s3cret")
	assert.True(t, ok)
	assert.Equal(t, RoleEditor, role)

	_, ok = dir.Authenticate("maria", "wrong")
	assert.False(t, ok)

	_, ok = dir.Authenticate("pedro", "s3cret")
	assert.False(t, ok)

	assert.False(t, NewDirectory(nil).Enabled())
}

func TestRole_Allows(t *testing.T) {
	assert.True(t, RoleAdmin.Allows(RoleEditor))
	assert.True(t, RoleEditor.Allows(RoleConsulta))
	assert.False(t, RoleConsulta.Allows(RoleEditor))
	assert.False(t, RoleEditor.Allows(RoleAdmin))
	assert.False(t, Role("").Allows(RoleConsulta))
}
