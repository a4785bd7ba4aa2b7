package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a named permission grouping.
type Role struct {
	ID          uuid.UUID
	Name        string
	Permissions []string
	Deletable   bool
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is the live authorization snapshot of an authenticated actor.
// It is resolved fresh from the role store on every decision and must never
// be cached across requests.
type Principal struct {
	ID          uuid.UUID
	RoleName    string
	Permissions []string
	IsAdmin     bool
}

// AuthorizationPolicy declares what a protected operation requires.
// An empty AllowedRoleNames admits any role. PermissionSets is a list of
// alternative AND-groups: the principal must hold every permission of at
// least one set. An empty list imposes no permission requirement.
type AuthorizationPolicy struct {
	AllowedRoleNames []string
	PermissionSets   [][]string
}

// RoleRef is a role reference that is either an unresolved id or a
// resolved Role record. Resolution happens explicitly in the guard.
type RoleRef struct {
	id   uuid.UUID
	role *Role
}

// UnresolvedRole builds a reference carrying only the role id.
func UnresolvedRole(id uuid.UUID) RoleRef {
	return RoleRef{id: id}
}

// ResolvedRole builds a reference carrying the full record.
func ResolvedRole(role Role) RoleRef {
	return RoleRef{id: role.ID, role: &role}
}

// ID returns the referenced role id.
func (r RoleRef) ID() uuid.UUID { return r.id }

// Role returns the resolved record and whether resolution happened.
func (r RoleRef) Role() (Role, bool) {
	if r.role == nil {
		return Role{}, false
	}
	return *r.role, true
}
