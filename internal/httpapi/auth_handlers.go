package httpapi

import (
	"net/http"

	"jobdesk.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Identity         auth.IdentityView `json:"identity"`
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token"`
	TokenType        string            `json:"token_type"`
	ExpiresIn        int64             `json:"expires_in"`
	RefreshExpiresIn int64             `json:"refresh_expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type recoveryRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type recoveryResetRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// recoveryAck is returned for every recovery request regardless of whether
// the username/email pair matched anything. Anti-enumeration by design.
const recoveryAck = "if the details were correct, a recovery email was sent"

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		Meta:     requestMeta(r),
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Identity:         result.Identity,
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(a.tokens.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(a.tokens.RefreshTTL().Seconds()),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	access, _, err := a.auth.Refresh(r.Context(), req.RefreshToken, requestMeta(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(a.tokens.AccessTTL().Seconds()),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	a.auth.Logout(r.Context(), principal, requestMeta(r))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleRecoveryRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req recoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err := a.auth.RequestPasswordRecovery(r.Context(), req.Username, req.Email, requestMeta(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": recoveryAck})
}

func (a *API) handleRecoveryReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req recoveryResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword, requestMeta(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req passwordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err := a.auth.ChangePassword(r.Context(), principal,
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword, requestMeta(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

// handleSession reports whether the request carries a valid access token.
// Anonymous callers get a 200 with authenticated=false rather than a 401, so
// frontends can probe session state without triggering auth error handling.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"id":            principal.ID,
		"username":      principal.Username,
		"role":          principal.Role,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	perms := principal.Role.Permissions()
	permNames := make([]string, 0, len(perms))
	for _, p := range perms {
		permNames = append(permNames, string(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          principal.ID,
		"username":    principal.Username,
		"email":       principal.Email,
		"role":        principal.Role,
		"permissions": permNames,
	})
}
