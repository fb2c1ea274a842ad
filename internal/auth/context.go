package auth

import "context"

// Principal is the authenticated actor attached to a request context by the
// RBAC guard: resolved identity fields plus the role-derived permission set.
type Principal struct {
	ID          string
	Username    string
	Email       string
	Role        Role
	Permissions map[Permission]struct{}
}

// NewPrincipal builds a principal from verified token claims.
func NewPrincipal(claims *Claims) Principal {
	perms := claims.Role.Permissions()
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{
		ID:          claims.Subject,
		Username:    claims.Username,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: set,
	}
}

// HasPermission reports whether the principal holds the permission, honoring
// the wildcard.
func (p Principal) HasPermission(perm Permission) bool {
	if _, ok := p.Permissions[PermissionAll]; ok {
		return true
	}
	_, ok := p.Permissions[perm]
	return ok
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
// The second return is false for anonymous contexts.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
