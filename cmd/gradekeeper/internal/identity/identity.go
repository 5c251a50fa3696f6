// Package identity carries the caller's user id and role through a request.
//
// Tokens are verified upstream by the identity provider's gateway; this
// package only reads the claims it is handed.
package identity

import (
	"context"
	"strings"
)

// Role is the caller's role claim.
type Role string

const (
	RoleTeacher    Role = "TEACHER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// rank orders roles so the strongest one wins when a token carries several.
var rank = map[Role]int{
	RoleTeacher:    1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// ParseRole normalizes a claim value. Unknown values yield ("", false).
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := rank[r]
	return r, ok
}

// IsAdmin reports whether the role bypasses grade membership.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity is the resolved caller.
type Identity struct {
	UserID string
	Role   Role
	Email  string
	Name   string
}

// System is the identity CLI commands run as.
var System = Identity{UserID: "system", Role: RoleSuperAdmin, Name: "gradekeeper CLI"}

type identityContextKey struct{}

// WithIdentity stores the caller on the context for downstream consumers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// CurrentUser retrieves the caller from the context.
func CurrentUser(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}
