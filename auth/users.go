// Package auth checks credentials against the static user map.
//
// Passwords are stored as the hex SHA-256 of their UTF-8 bytes. Roles are
// admin, editor and consulta; the hosting adapter decides what each may do.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/warp/rental-ledger/config"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleConsulta Role = "consulta"
)

// rank orders roles so that a higher role includes the lower ones.
var rank = map[Role]int{RoleConsulta: 1, RoleEditor: 2, RoleAdmin: 3}

// Allows reports whether r satisfies the minimum role.
func (r Role) Allows(min Role) bool {
	return rank[r] >= rank[min] && rank[r] > 0
}

// HashPassword returns the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Directory is the user map.
type Directory struct {
	users map[string]config.User
}

func NewDirectory(users map[string]config.User) *Directory {
	normalized := make(map[string]config.User, len(users))
	for name, u := range users {
		normalized[strings.ToLower(name)] = u
	}
	return &Directory{users: normalized}
}

// Enabled is false when no users are configured.
func (d *Directory) Enabled() bool {
	return len(d.users) > 0
}

// Authenticate returns the user's role when the password matches.
func (d *Directory) Authenticate(user, password string) (Role, bool) {
	u, ok := d.users[strings.ToLower(user)]
	if !ok {
		return "", false
	}
	want := strings.ToLower(u.PasswordHash)
	got := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return "", false
	}
	return Role(u.Role), true
}
