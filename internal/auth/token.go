package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tags a token with its single purpose. The kind is baked into the
// signed claims at issue time and can never change afterwards.
type TokenKind string

const (
	TokenKindAccess   TokenKind = "access"
	TokenKindRefresh  TokenKind = "refresh"
	TokenKindRecovery TokenKind = "recovery"
)

const (
	defaultIssuer      = "jobdesk"
	defaultAccessTTL   = time.Hour
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultRecoveryTTL = 30 * time.Minute
)

// Claims is the verified payload of a token. Email and role are denormalized
// into the token so downstream checks need no identity store round-trip.
type Claims struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	TokenKind TokenKind `json:"token_kind"`
	jwt.RegisteredClaims
}

// TokenPair bundles the access and refresh tokens issued together at login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService issues and validates signed time-bounded tokens. It is a pure
// function of (secret, clock, claims) and safe for unbounded parallel use.
type TokenService struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	recoveryTTL time.Duration
	now         func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithRecoveryTTL configures the password recovery token lifetime.
func WithRecoveryTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.recoveryTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with the shared secret.
// The lifetimes must keep their relative ordering: recovery shortest, access
// in between, refresh longest.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	s := &TokenService{
		secret:      []byte(secret),
		issuer:      defaultIssuer,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		recoveryTTL: defaultRecoveryTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recoveryTTL >= s.accessTTL || s.accessTTL >= s.refreshTTL {
		return nil, fmt.Errorf("auth: token lifetimes must satisfy recovery < access < refresh (got %s, %s, %s)",
			s.recoveryTTL, s.accessTTL, s.refreshTTL)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) ttlFor(kind TokenKind) (time.Duration, error) {
	switch kind {
	case TokenKindAccess:
		return s.accessTTL, nil
	case TokenKindRefresh:
		return s.refreshTTL, nil
	case TokenKindRecovery:
		return s.recoveryTTL, nil
	default:
		return 0, fmt.Errorf("auth: unknown token kind %q", kind)
	}
}

func (s *TokenService) issue(identity *Identity, kind TokenKind) (string, time.Time, error) {
	if identity == nil || identity.ID == "" {
		return "", time.Time{}, errors.New("auth: identity is required")
	}
	ttl, err := s.ttlFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username:  identity.Username,
		Email:     identity.Email,
		Role:      identity.Role,
		TokenKind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueAccess mints a short-lived token authorizing API calls.
func (s *TokenService) IssueAccess(identity *Identity) (string, time.Time, error) {
	return s.issue(identity, TokenKindAccess)
}

// IssueRefresh mints a long-lived token used solely to mint new access tokens.
func (s *TokenService) IssueRefresh(identity *Identity) (string, time.Time, error) {
	return s.issue(identity, TokenKindRefresh)
}

// IssueRecovery mints a very short-lived token authorizing one password reset.
func (s *TokenService) IssueRecovery(identity *Identity) (string, time.Time, error) {
	return s.issue(identity, TokenKindRecovery)
}

// IssuePair mints an access and a refresh token together. Either both tokens
// are returned or neither is.
func (s *TokenService) IssuePair(identity *Identity) (TokenPair, error) {
	access, accessExp, err := s.IssueAccess(identity)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(identity)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Validate verifies the signature, decodes the claims, and checks that the
// token carries exactly the expected kind and has not expired. The returned
// errors stay distinguishable: ErrTokenExpired for natural expiry,
// ErrWrongTokenKind for a kind mismatch, ErrTokenInvalid for everything else.
func (s *TokenService) Validate(token string, kind TokenKind) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil ||
		!claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, ErrTokenInvalid
	}
	if claims.TokenKind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

// Refresh validates a refresh token and mints a new access token for the
// same subject. The refresh token itself is untouched: it stays valid until
// natural expiry.
func (s *TokenService) Refresh(refreshToken string) (string, time.Time, error) {
	claims, err := s.Validate(refreshToken, TokenKindRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	identity := &Identity{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
	}
	return s.IssueAccess(identity)
}
