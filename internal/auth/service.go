package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobdesk.org/internal/audit"
	"jobdesk.org/internal/obs"
)

const defaultMinPasswordLen = 8

// Mailer is the outbound email collaborator. Recovery tokens travel only
// through this channel, never back to the API caller.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// RequestMeta carries per-request client attributes into audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginRequest is one authentication attempt.
type LoginRequest struct {
	Username string
	Password string
	Meta     RequestMeta
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Identity IdentityView
	Tokens   TokenPair
}

// Service orchestrates the credential verifier, identity store, and token
// service over a single login or recovery attempt. All collaborators are
// injected once at construction; the service itself holds no mutable state.
type Service struct {
	store          IdentityStore
	tokens         *TokenService
	recorder       *audit.Recorder
	mailer         Mailer
	now            func() time.Time
	minPasswordLen int
	resetBaseURL   string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMailer wires the email delivery collaborator used by the recovery flow.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// WithMinPasswordLen overrides the minimum password length policy.
func WithMinPasswordLen(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minPasswordLen = n
		}
	}
}

// WithResetBaseURL sets the public URL prefix embedded in recovery emails.
func WithResetBaseURL(u string) ServiceOption {
	return func(s *Service) { s.resetBaseURL = strings.TrimRight(u, "/") }
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authenticator.
func NewService(store IdentityStore, tokens *TokenService, recorder *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		store:          store,
		tokens:         tokens,
		recorder:       recorder,
		now:            time.Now,
		minPasswordLen: defaultMinPasswordLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login runs the authentication state machine for one attempt. Unknown
// username and wrong password collapse into the same generic failure so the
// response never reveals which field was wrong. A deactivated account is
// reported distinctly: the caller already proved ownership of the
// credentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	username := NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		s.auditFailure(ctx, username, req.Meta, "missing credentials")
		return nil, ErrInvalidCredentials
	}

	identity, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			s.auditFailure(ctx, username, req.Meta, "unknown username")
			return nil, ErrInvalidCredentials
		}
		obs.LogError("identity lookup failed", map[string]any{"error": err.Error()})
		return nil, ErrService
	}

	if !VerifyPassword(identity.PasswordHash, req.Password) {
		s.auditFailure(ctx, username, req.Meta, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if !identity.Active {
		obs.ObserveLogin("deactivated")
		s.record(ctx, audit.Event{
			Type:          audit.EventLoginFailure,
			Severity:      audit.SeverityWarning,
			ActorID:       identity.ID,
			ActorUsername: identity.Username,
			ActorRole:     string(identity.Role),
			IP:            req.Meta.IP,
			UserAgent:     req.Meta.UserAgent,
			Detail:        map[string]any{"reason": "account deactivated"},
		})
		return nil, ErrAccountDeactivated
	}

	pair, err := s.tokens.IssuePair(identity)
	if err != nil {
		obs.LogError("token issuance failed", map[string]any{
			"username": identity.Username,
			"error":    err.Error(),
		})
		s.record(ctx, audit.Event{
			Type:          audit.EventLoginFailure,
			Severity:      audit.SeverityError,
			ActorID:       identity.ID,
			ActorUsername: identity.Username,
			IP:            req.Meta.IP,
			UserAgent:     req.Meta.UserAgent,
			Detail:        map[string]any{"reason": "token issuance failed"},
		})
		return nil, ErrService
	}

	// Best-effort: a failed bookkeeping update must not fail the login.
	// One clock read, so the echoed timestamp matches the persisted one.
	loginAt := s.now().UTC()
	if err := s.store.RecordLogin(ctx, identity.ID, loginAt); err != nil {
		obs.LogWarn("login bookkeeping failed", map[string]any{
			"username": identity.Username,
			"error":    err.Error(),
		})
	} else {
		identity.LastLoginAt = &loginAt
		identity.LoginCount++
	}

	obs.ObserveLogin("success")
	s.record(ctx, audit.Event{
		Type:          audit.EventLoginSuccess,
		ActorID:       identity.ID,
		ActorUsername: identity.Username,
		ActorRole:     string(identity.Role),
		IP:            req.Meta.IP,
		UserAgent:     req.Meta.UserAgent,
	})
	return &LoginResult{Identity: identity.SafeView(), Tokens: pair}, nil
}

func (s *Service) auditFailure(ctx context.Context, username string, meta RequestMeta, reason string) {
	obs.ObserveLogin("failure")
	s.record(ctx, audit.Event{
		Type:      audit.EventLoginFailure,
		Severity:  audit.SeverityWarning,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    map[string]any{"username": username, "reason": reason},
	})
}

// Refresh exchanges a valid refresh token for a new access token. Token-kind
// and expiry errors pass through untouched so the client can branch between
// refresh and re-login.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (string, time.Time, error) {
	access, expiresAt, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	claims, _ := s.tokens.Validate(refreshToken, TokenKindRefresh)
	if claims != nil {
		s.record(ctx, audit.Event{
			Type:          audit.EventTokenRefresh,
			ActorID:       claims.Subject,
			ActorUsername: claims.Username,
			ActorRole:     string(claims.Role),
			IP:            meta.IP,
			UserAgent:     meta.UserAgent,
		})
	}
	return access, expiresAt, nil
}

// Logout records the event. Issued tokens stay valid until natural expiry:
// there is no server-side revocation list.
func (s *Service) Logout(ctx context.Context, principal Principal, meta RequestMeta) {
	s.record(ctx, audit.Event{
		Type:          audit.EventLogout,
		ActorID:       principal.ID,
		ActorUsername: principal.Username,
		ActorRole:     string(principal.Role),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	})
}

// RequestPasswordRecovery starts the recovery flow. The response is
// deliberately identical for unknown usernames, mismatched emails, and
// inactive accounts: the caller only ever learns "if the details were
// correct, an email was sent".
func (s *Service) RequestPasswordRecovery(ctx context.Context, username, email string, meta RequestMeta) error {
	username = NormalizeUsername(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" {
		return nil
	}

	identity, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			obs.LogError("identity lookup failed", map[string]any{"error": err.Error()})
		}
		return nil
	}
	if !identity.Active || !strings.EqualFold(identity.Email, email) {
		return nil
	}

	token, expiresAt, err := s.tokens.IssueRecovery(identity)
	if err != nil {
		obs.LogError("recovery token issuance failed", map[string]any{
			"username": identity.Username,
			"error":    err.Error(),
		})
		return nil
	}

	if s.mailer != nil {
		body := s.recoveryEmailBody(identity.Username, token, expiresAt)
		if err := s.mailer.Send(ctx, identity.Email, "Password recovery", body); err != nil {
			obs.LogError("recovery email delivery failed", map[string]any{
				"username": identity.Username,
				"error":    err.Error(),
			})
		}
	}

	s.record(ctx, audit.Event{
		Type:          audit.EventRecoveryRequested,
		ActorID:       identity.ID,
		ActorUsername: identity.Username,
		ActorRole:     string(identity.Role),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	})
	return nil
}

func (s *Service) recoveryEmailBody(username, token string, expiresAt time.Time) string {
	link := token
	if s.resetBaseURL != "" {
		link = s.resetBaseURL + "/reset?token=" + token
	}
	return fmt.Sprintf(
		"<p>Hello %s,</p><p>A password reset was requested for your account. "+
			"Use the link below before %s:</p><p><a href=%q>%s</a></p>"+
			"<p>If you did not request this, ignore this message.</p>",
		username, expiresAt.UTC().Format(time.RFC3339), link, link)
}

// ResetPassword redeems a recovery token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirm string, meta RequestMeta) error {
	claims, err := s.tokens.Validate(token, TokenKindRecovery)
	if err != nil {
		return err
	}
	if err := s.checkPasswordPolicy(newPassword, confirm); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		obs.LogError("password hashing failed", map[string]any{"error": err.Error()})
		return ErrService
	}
	if err := s.store.UpdatePassword(ctx, claims.Subject, hash); err != nil {
		obs.LogError("password persist failed", map[string]any{"error": err.Error()})
		return ErrService
	}
	s.record(ctx, audit.Event{
		Type:          audit.EventPasswordResetSuccess,
		Severity:      audit.SeverityWarning,
		ActorID:       claims.Subject,
		ActorUsername: claims.Username,
		ActorRole:     string(claims.Role),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	})
	return nil
}

// ChangePassword updates the password of an authenticated caller. The
// current password is verified first.
func (s *Service) ChangePassword(ctx context.Context, principal Principal, current, newPassword, confirm string, meta RequestMeta) error {
	identity, err := s.store.FindByUsername(ctx, principal.Username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrInvalidCredentials
		}
		obs.LogError("identity lookup failed", map[string]any{"error": err.Error()})
		return ErrService
	}
	if !VerifyPassword(identity.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if err := s.checkPasswordPolicy(newPassword, confirm); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		obs.LogError("password hashing failed", map[string]any{"error": err.Error()})
		return ErrService
	}
	if err := s.store.UpdatePassword(ctx, identity.ID, hash); err != nil {
		obs.LogError("password persist failed", map[string]any{"error": err.Error()})
		return ErrService
	}
	s.record(ctx, audit.Event{
		Type:          audit.EventPasswordChange,
		ActorID:       identity.ID,
		ActorUsername: identity.Username,
		ActorRole:     string(identity.Role),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	})
	return nil
}

func (s *Service) checkPasswordPolicy(newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if len(newPassword) < s.minPasswordLen {
		return fmt.Errorf("%w: minimum length is %d", ErrWeakPassword, s.minPasswordLen)
	}
	return nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(ctx, event)
	}
}
