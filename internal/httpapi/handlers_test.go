package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"jobdesk.org/internal/audit"
	"jobdesk.org/internal/auth"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	tokens *auth.TokenService
	store  *auth.MemoryIdentityStore
	events *audit.MemoryStore
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	store := auth.NewMemoryIdentityStore()
	seed := func(username string, role auth.Role, active bool) {
		hash, err := auth.HashPassword(username + "-password")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		store.Put(&auth.Identity{
			ID:           "id-" + username,
			Username:     username,
			PasswordHash: hash,
			Email:        username + "@example.com",
			Role:         role,
			Active:       active,
			CreatedAt:    time.Now().UTC(),
		})
	}
	seed("root", auth.RoleSuperAdmin, true)
	seed("mod", auth.RoleModerator, true)
	seed("gone", auth.RoleAdmin, false)

	events := audit.NewMemoryStore()
	recorder := audit.NewRecorder(events)

	svc, err := auth.NewService(store, tokens, recorder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(ReadyProbe{}, "test", svc, tokens, recorder,
		WithRateLimit(100, 100),
		WithAuditRetention(90*24*time.Hour))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		tokens:  tokens,
		store:   store,
		events:  events,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) login(username string) loginResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"username": username,
		"password": username + "-password",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	payload := decode[loginResponse](c.t, resp)
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		c.t.Fatalf("incomplete token pair: %+v", payload)
	}
	return payload
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func expectErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status %d, want %d", resp.StatusCode, status)
	}
	payload := decode[errorResponse](t, resp)
	if payload.Code != code {
		t.Fatalf("code %q, want %q", payload.Code, code)
	}
	if payload.RequestID == "" {
		t.Fatal("error envelope missing request_id")
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestLoginAndMeFlow(t *testing.T) {
	c := newTestAPI(t)

	login := c.login("root")
	if login.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %s", login.TokenType)
	}
	if login.Identity.Username != "root" || login.Identity.Role != auth.RoleSuperAdmin {
		t.Fatalf("unexpected identity: %+v", login.Identity)
	}
	if login.RefreshExpiresIn <= login.ExpiresIn {
		t.Fatalf("refresh lifetime %d must exceed access lifetime %d",
			login.RefreshExpiresIn, login.ExpiresIn)
	}

	resp := c.get("/v1/auth/me", nil, bearer(login.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	me := decode[struct {
		ID          string   `json:"id"`
		Username    string   `json:"username"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}](t, resp)
	if me.ID != "id-root" || me.Role != "super_admin" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
	if len(me.Permissions) != 1 || me.Permissions[0] != "*" {
		t.Fatalf("expected wildcard permission, got %v", me.Permissions)
	}
}

func TestLoginRejections(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/auth/login", map[string]any{
		"username": "root", "password": "wrong",
	}, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	resp = c.post("/v1/auth/login", map[string]any{
		"username": "nobody", "password": "wrong",
	}, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	resp = c.post("/v1/auth/login", map[string]any{
		"username": "gone", "password": "gone-password",
	}, nil)
	expectErrorCode(t, resp, http.StatusForbidden, "ACCOUNT_DEACTIVATED")
}

func TestRefreshEndpoint(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("mod")

	resp := c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": login.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", resp.StatusCode)
	}
	refreshed := decode[refreshResponse](t, resp)
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}

	// Access tokens must not pass as refresh tokens.
	resp = c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": login.AccessToken,
	}, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_TOKEN")
}

func TestRequireAuthRejections(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("mod")

	resp := c.get("/v1/auth/me", nil, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	resp = c.get("/v1/auth/me", nil, bearer("garbage"))
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_TOKEN")

	// A refresh token is not an access token.
	resp = c.get("/v1/auth/me", nil, bearer(login.RefreshToken))
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_TOKEN")

	// A non-bearer Authorization header counts as no credential at all.
	resp = c.get("/v1/auth/me", nil, map[string]string{"Authorization": "Basic dXNlcjpwYXNz"})
	expectErrorCode(t, resp, http.StatusUnauthorized, "NOT_AUTHENTICATED")
}

func TestTokenExtractionFallbacks(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("mod")

	resp := c.get("/v1/auth/me", nil, map[string]string{"X-Access-Token": login.AccessToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("header fallback status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/me", url.Values{"access_token": {login.AccessToken}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query fallback status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuditEndpointRBAC(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root")
	mod := c.login("mod")

	// Moderators lack manage_admins.
	resp := c.get("/v1/audit/events", nil, bearer(mod.AccessToken))
	expectErrorCode(t, resp, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS")

	// The denial itself must be recorded.
	denied, err := c.events.Query(context.Background(), audit.Filter{Type: audit.EventPermissionDenied})
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	if len(denied) != 1 || denied[0].ActorID != "id-mod" {
		t.Fatalf("expected one permission_denied event for mod, got %+v", denied)
	}

	resp = c.get("/v1/audit/events", url.Values{"type": {"login_success"}}, bearer(root.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit events status: %d", resp.StatusCode)
	}
	listing := decode[struct {
		Events []audit.Event `json:"events"`
		Count  int           `json:"count"`
	}](t, resp)
	if listing.Count != 2 || len(listing.Events) != 2 {
		t.Fatalf("expected the two logins, got %+v", listing)
	}
	if listing.Events[0].ActorUsername != "mod" {
		t.Fatalf("events not newest-first: %+v", listing.Events)
	}
}

func TestAuditEventsRejectsBadParams(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root")

	resp := c.get("/v1/audit/events", url.Values{"from": {"yesterday"}}, bearer(root.AccessToken))
	expectErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")

	resp = c.get("/v1/audit/events", url.Values{"limit": {"9000"}}, bearer(root.AccessToken))
	expectErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAuditCleanupEndpoint(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root")

	old := audit.Event{
		ID:   "stale",
		Time: time.Now().UTC().Add(-365 * 24 * time.Hour),
		Type: audit.EventLoginSuccess,
	}
	if err := c.events.Append(context.Background(), &old); err != nil {
		t.Fatalf("append: %v", err)
	}

	resp := c.post("/v1/audit/cleanup", map[string]any{"retention": "2160h"}, bearer(root.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status: %d", resp.StatusCode)
	}
	result := decode[struct {
		Removed int64 `json:"removed"`
	}](t, resp)
	if result.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", result.Removed)
	}

	resp = c.post("/v1/audit/cleanup", map[string]any{"retention": "not-a-duration"}, bearer(root.AccessToken))
	expectErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAuditCleanupDefaultRetention(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root")

	for id, age := range map[string]time.Duration{
		"ancient": 365 * 24 * time.Hour,
		"recent":  24 * time.Hour,
	} {
		event := audit.Event{
			ID:   id,
			Time: time.Now().UTC().Add(-age),
			Type: audit.EventLoginSuccess,
		}
		if err := c.events.Append(context.Background(), &event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// No retention in the request body: the configured 90-day default applies.
	resp := c.post("/v1/audit/cleanup", map[string]any{}, bearer(root.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status: %d", resp.StatusCode)
	}
	result := decode[struct {
		Removed int64 `json:"removed"`
	}](t, resp)
	if result.Removed != 1 {
		t.Fatalf("expected only the ancient event removed, got %d", result.Removed)
	}
}

func TestAuditCleanupRequiresSuperAdmin(t *testing.T) {
	c := newTestAPI(t)
	mod := c.login("mod")

	resp := c.post("/v1/audit/cleanup", map[string]any{"retention": "2160h"}, bearer(mod.AccessToken))
	expectErrorCode(t, resp, http.StatusForbidden, "INSUFFICIENT_ROLE")

	denied, err := c.events.Query(context.Background(), audit.Filter{Type: audit.EventPermissionDenied})
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	if len(denied) != 1 || denied[0].ActorID != "id-mod" {
		t.Fatalf("expected one permission_denied event for mod, got %+v", denied)
	}
	if denied[0].Detail["actual_role"] != "moderator" {
		t.Fatalf("denial detail missing actual role: %+v", denied[0].Detail)
	}

	resp = c.post("/v1/audit/cleanup", map[string]any{"retention": "2160h"}, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "NOT_AUTHENTICATED")
}

func TestSessionEndpoint(t *testing.T) {
	c := newTestAPI(t)

	// Anonymous callers get a 200, never a 401.
	resp := c.get("/v1/auth/session", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous session status: %d", resp.StatusCode)
	}
	session := decode[struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}](t, resp)
	if session.Authenticated {
		t.Fatal("anonymous session must not be authenticated")
	}

	// A garbage token degrades to anonymous instead of rejecting.
	resp = c.get("/v1/auth/session", nil, bearer("garbage"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("garbage-token session status: %d", resp.StatusCode)
	}
	session = decode[struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}](t, resp)
	if session.Authenticated {
		t.Fatal("invalid token must leave the session anonymous")
	}

	login := c.login("mod")
	resp = c.get("/v1/auth/session", nil, bearer(login.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated session status: %d", resp.StatusCode)
	}
	session = decode[struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}](t, resp)
	if !session.Authenticated || session.Username != "mod" {
		t.Fatalf("unexpected session payload: %+v", session)
	}
}

func TestRateLimitConfigured(t *testing.T) {
	c := newTestAPI(t)

	tight := New(ReadyProbe{}, "test", nil, c.tokens, nil, WithRateLimit(1, 1))
	srv := httptest.NewServer(tight.Handler())
	t.Cleanup(srv.Close)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := srv.Client().Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if resp.Header.Get("Retry-After") == "" {
				t.Fatal("429 missing Retry-After")
			}
			limited = true
		}
		resp.Body.Close()
	}
	if !limited {
		t.Fatal("expected the burst-1 limiter to reject at least one request")
	}
}

func TestRecoveryRequestAlwaysAccepted(t *testing.T) {
	c := newTestAPI(t)

	for _, body := range []map[string]any{
		{"username": "root", "email": "root@example.com"},
		{"username": "nobody", "email": "nobody@example.com"},
		{"username": "root", "email": "wrong@example.com"},
	} {
		resp := c.post("/v1/auth/recovery", body, nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("recovery status for %v: %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestRecoveryResetFlow(t *testing.T) {
	c := newTestAPI(t)

	identity, err := c.store.FindByUsername(context.Background(), "mod")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	token, _, err := c.tokens.IssueRecovery(identity)
	if err != nil {
		t.Fatalf("IssueRecovery: %v", err)
	}

	resp := c.post("/v1/auth/recovery/reset", map[string]any{
		"token":            token,
		"new_password":     "brand-new-pass",
		"confirm_password": "brand-new-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/auth/login", map[string]any{
		"username": "mod", "password": "brand-new-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// An access token must not redeem a reset.
	login := c.login("root")
	resp = c.post("/v1/auth/recovery/reset", map[string]any{
		"token":            login.AccessToken,
		"new_password":     "brand-new-pass",
		"confirm_password": "brand-new-pass",
	}, nil)
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_TOKEN")
}

func TestPasswordChangeEndpoint(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("mod")

	resp := c.post("/v1/auth/password", map[string]any{
		"current_password": "wrong",
		"new_password":     "brand-new-pass",
		"confirm_password": "brand-new-pass",
	}, bearer(login.AccessToken))
	expectErrorCode(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	resp = c.post("/v1/auth/password", map[string]any{
		"current_password": "mod-password",
		"new_password":     "short",
		"confirm_password": "short",
	}, bearer(login.AccessToken))
	expectErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")

	resp = c.post("/v1/auth/password", map[string]any{
		"current_password": "mod-password",
		"new_password":     "brand-new-pass",
		"confirm_password": "brand-new-pass",
	}, bearer(login.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("password change status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutEndpoint(t *testing.T) {
	c := newTestAPI(t)
	login := c.login("mod")

	resp := c.post("/v1/auth/logout", nil, bearer(login.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// No revocation list: the token still works after logout.
	resp = c.get("/v1/auth/me", nil, bearer(login.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me after logout: %d", resp.StatusCode)
	}
	resp.Body.Close()

	events, err := c.events.Query(context.Background(), audit.Filter{Type: audit.EventLogout})
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	if len(events) != 1 || events[0].ActorUsername != "mod" {
		t.Fatalf("expected one logout event, got %+v", events)
	}
}

func TestHealthAndRouting(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	health := decode[struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}](t, resp)
	if health.Status != "ok" || health.Version != "test" {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	resp = c.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/login", nil, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET login status: %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow header: %q", allow)
	}
	resp.Body.Close()

	resp = c.get("/v1/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown route status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRequestIDPropagation(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, map[string]string{"X-Request-Id": "fixed-rid"})
	if got := resp.Header.Get("X-Request-Id"); got != "fixed-rid" {
		t.Fatalf("request id not echoed: %q", got)
	}
	resp.Body.Close()

	resp = c.get("/healthz", nil, nil)
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}
	resp.Body.Close()
}
