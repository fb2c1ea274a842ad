package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"jobdesk.org/internal/audit"
	"jobdesk.org/internal/auth"
	"jobdesk.org/internal/obs"
)

const (
	authHeader     = "Authorization"
	bearerPrefix   = "Bearer "
	fallbackHeader = "X-Access-Token"
	fallbackQuery  = "access_token"
)

// extractToken pulls the credential from the request. The Authorization
// bearer header is canonical; the secondary header and the query parameter
// are fallbacks for constrained clients, in that priority order.
func extractToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
			return strings.TrimSpace(header[len(bearerPrefix):])
		}
		return ""
	}
	if token := strings.TrimSpace(r.Header.Get(fallbackHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get(fallbackQuery))
}

// requireAuth validates the access token and attaches the resolved principal
// to the request context. The rejection codes stay distinct so clients can
// tell "re-login" apart from "malformed request".
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, codeNotAuthenticated, "authentication required")
			return
		}
		claims, err := a.tokens.Validate(token, auth.TokenKindAccess)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				obs.ObserveTokenValidation("expired")
				writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "token expired")
			case errors.Is(err, auth.ErrWrongTokenKind):
				obs.ObserveTokenValidation("wrong_kind")
				writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "wrong token kind")
			default:
				obs.ObserveTokenValidation("invalid")
				writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
			}
			return
		}
		obs.ObserveTokenValidation("ok")
		ctx := auth.ContextWithPrincipal(r.Context(), auth.NewPrincipal(claims))
		next(w, r.WithContext(ctx))
	}
}

// optionalAuth attaches a principal when a valid access token is present and
// otherwise leaves the context anonymous. It never rejects.
func (a *API) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			if claims, err := a.tokens.Validate(token, auth.TokenKindAccess); err == nil {
				ctx := auth.ContextWithPrincipal(r.Context(), auth.NewPrincipal(claims))
				r = r.WithContext(ctx)
			}
		}
		next(w, r)
	}
}

// requirePermission gates a handler on a role-derived permission. Failures
// are audited with the required permission and the actor's actual role.
func (a *API) requirePermission(perm auth.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeNotAuthenticated, "authentication required")
			return
		}
		if !principal.HasPermission(perm) {
			a.auditDenied(r, principal, map[string]any{
				"required_permission": string(perm),
				"actual_role":         string(principal.Role),
			})
			writeError(w, r, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions")
			return
		}
		next(w, r)
	}
}

// requireRole gates a handler on membership in an allowed role set.
func (a *API) requireRole(roles []auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeNotAuthenticated, "authentication required")
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				next(w, r)
				return
			}
		}
		allowed := make([]string, 0, len(roles))
		for _, role := range roles {
			allowed = append(allowed, string(role))
		}
		a.auditDenied(r, principal, map[string]any{
			"allowed_roles": allowed,
			"actual_role":   string(principal.Role),
		})
		writeError(w, r, http.StatusForbidden, codeInsufficientRole, "insufficient role")
	}
}

func (a *API) auditDenied(r *http.Request, principal auth.Principal, detail map[string]any) {
	obs.ObservePermissionDenied()
	if a.recorder == nil {
		return
	}
	detail["path"] = r.URL.Path
	a.recorder.Record(r.Context(), audit.Event{
		Type:          audit.EventPermissionDenied,
		Severity:      audit.SeverityWarning,
		ActorID:       principal.ID,
		ActorUsername: principal.Username,
		ActorRole:     string(principal.Role),
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
		Detail:        detail,
	})
}
