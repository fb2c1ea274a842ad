package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Identity is one administrative account as held by the identity store.
// Usernames are unique and normalized to lowercase. The password hash never
// leaves this package: external views go through SafeView.
type Identity struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	LoginCount   int
}

// IdentityView is the identity minus its credentials, safe to return to
// callers and to embed in API responses.
type IdentityView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LoginCount  int        `json:"login_count"`
}

// SafeView strips the password hash from the identity.
func (i *Identity) SafeView() IdentityView {
	return IdentityView{
		ID:          i.ID,
		Username:    i.Username,
		Email:       i.Email,
		Role:        i.Role,
		Active:      i.Active,
		CreatedAt:   i.CreatedAt,
		LastLoginAt: i.LastLoginAt,
		LoginCount:  i.LoginCount,
	}
}

// NormalizeUsername lowercases and trims a username before any lookup.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

// IdentityStore is the narrow contract against the external identity store.
// Implementations return ErrIdentityNotFound for unknown usernames; the
// authenticator decides how much of that distinction reaches a caller.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// MemoryIdentityStore keeps identities in process memory. Used by tests and
// by deployments that have not wired a database yet.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	byUsername map[string]*Identity
}

// NewMemoryIdentityStore constructs an empty in-memory store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{byUsername: make(map[string]*Identity)}
}

// Put inserts or replaces an identity keyed by its normalized username.
func (s *MemoryIdentityStore) Put(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *identity
	clone.Username = NormalizeUsername(clone.Username)
	s.byUsername[clone.Username] = &clone
}

func (s *MemoryIdentityStore) FindByUsername(_ context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	clone := *identity
	return &clone, nil
}

func (s *MemoryIdentityStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.byUsername {
		if identity.ID == id {
			identity.PasswordHash = passwordHash
			return nil
		}
	}
	return ErrIdentityNotFound
}

func (s *MemoryIdentityStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.byUsername {
		if identity.ID == id {
			t := at
			identity.LastLoginAt = &t
			identity.LoginCount++
			return nil
		}
	}
	return ErrIdentityNotFound
}
