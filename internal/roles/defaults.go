package roles

import "github.com/vantage-cms/vantage-cms/internal/rbac"

// Canonical role names. Exactly these three exist with Deletable = false.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
)

// DefaultRoleCount is the number of canonical non-deletable roles.
const DefaultRoleCount = 3

type defaultRole struct {
	Name        string
	Permissions []string
	Color       string
}

// defaultRoles returns the canonical seed set in creation order.
func defaultRoles() []defaultRole {
	return []defaultRole{
		{
			Name:        RoleAdmin,
			Permissions: rbac.Catalog(),
			Color:       "#d32f2f",
		},
		{
			Name:        RoleManager,
			Permissions: rbac.ContentPermissions(),
			Color:       "#1976d2",
		},
		{
			Name: RoleUser,
			Permissions: []string{
				"post:read",
				"category:read",
				"tag:read",
				"service:read",
				"portfolio:read",
			},
			Color: "#388e3c",
		},
	}
}

// DefaultRoleNames lists the canonical names in seed order.
func DefaultRoleNames() []string {
	return []string{RoleAdmin, RoleManager, RoleUser}
}
