package auth

import (
	"fmt"
	"strings"
)

// Role is the administrative role attached to an identity. The permission
// set is derived from the role, never stored per identity.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
)

// Permission names a capability gated by the RBAC guard.
type Permission string

const (
	PermissionRead         Permission = "read"
	PermissionWrite        Permission = "write"
	PermissionDelete       Permission = "delete"
	PermissionManageAdmins Permission = "manage_admins"

	// PermissionAll is the reserved wildcard granting every permission.
	PermissionAll Permission = "*"
)

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Permissions returns the permission set derived from the role. Unknown
// roles carry no permissions.
func (r Role) Permissions() []Permission {
	switch r {
	case RoleSuperAdmin:
		return []Permission{PermissionAll}
	case RoleAdmin:
		return []Permission{PermissionRead, PermissionWrite, PermissionDelete}
	case RoleModerator:
		return []Permission{PermissionRead, PermissionWrite}
	default:
		return nil
	}
}

// HasPermission reports whether the role grants the permission, honoring
// the wildcard.
func HasPermission(role Role, p Permission) bool {
	for _, granted := range role.Permissions() {
		if granted == PermissionAll || granted == p {
			return true
		}
	}
	return false
}
