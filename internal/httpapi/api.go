// Package httpapi exposes the admin authentication service over HTTP. All
// responses are JSON; failures carry a machine-readable code so clients can
// branch without parsing prose.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jobdesk.org/internal/audit"
	"jobdesk.org/internal/auth"
	"jobdesk.org/internal/obs"
)

// Error codes surfaced in the JSON error envelope.
const (
	codeNotAuthenticated  = "NOT_AUTHENTICATED"
	codeInvalidToken      = "INVALID_TOKEN"
	codeTokenExpired      = "TOKEN_EXPIRED"
	codeInsufficientPerms = "INSUFFICIENT_PERMISSIONS"
	codeInsufficientRole  = "INSUFFICIENT_ROLE"
	codeAccountDisabled   = "ACCOUNT_DEACTIVATED"
	codeBadCredentials    = "INVALID_CREDENTIALS"
	codeValidation        = "VALIDATION_ERROR"
	codeService           = "SERVICE_ERROR"
)

// ReadyProbe checks readiness dependencies, typically a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authenticator, token service, and audit
// log. Construct once at process start and serve via Handler.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	tokens     *auth.TokenService
	recorder   *audit.Recorder
	readyProbe ReadyProbe
	version    string

	rateBurst      int
	ratePerSec     int
	auditRetention time.Duration
}

// Option configures API behavior.
type Option func(*API)

// WithRateLimit overrides the per-IP token bucket parameters.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

// WithAuditRetention sets the retention window applied when a cleanup
// request does not name one.
func WithAuditRetention(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.auditRetention = d
		}
	}
}

// New wires the route table.
func New(rp ReadyProbe, version string, svc *auth.Service, tokens *auth.TokenService, recorder *audit.Recorder, opts ...Option) *API {
	a := &API{
		mux:            http.NewServeMux(),
		auth:           svc,
		tokens:         tokens,
		recorder:       recorder,
		readyProbe:     rp,
		version:        version,
		rateBurst:      20,
		ratePerSec:     10,
		auditRetention: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/recovery", a.handleRecoveryRequest)
	a.mux.HandleFunc("/v1/auth/recovery/reset", a.handleRecoveryReset)
	a.mux.HandleFunc("/v1/auth/session", a.optionalAuth(a.handleSession))
	a.mux.HandleFunc("/v1/auth/logout", a.requireAuth(a.handleLogout))
	a.mux.HandleFunc("/v1/auth/password", a.requireAuth(a.handlePasswordChange))
	a.mux.HandleFunc("/v1/auth/me", a.requireAuth(a.handleMe))

	a.mux.HandleFunc("/v1/audit/events",
		a.requireAuth(a.requirePermission(auth.PermissionManageAdmins, a.handleAuditEvents)))
	a.mux.HandleFunc("/v1/audit/cleanup",
		a.requireAuth(a.requireRole([]auth.Role{auth.RoleSuperAdmin}, a.handleAuditCleanup)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeValidation, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler chain for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = LoggingJSON(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "jobdesk-admin-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	body := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := requestIDFrom(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, status, body)
}

// writeAuthError maps the auth sentinel taxonomy onto status codes and
// machine-readable kinds.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeBadCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDeactivated):
		writeError(w, r, http.StatusForbidden, codeAccountDisabled, "account deactivated")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "token expired")
	case errors.Is(err, auth.ErrWrongTokenKind):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "wrong token kind")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, codeService, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
}

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
