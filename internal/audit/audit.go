// Package audit records security-relevant events emitted by the
// authenticator and the RBAC guard. Events are append-only: once recorded
// they are never mutated, only queried and eventually pruned by age.
package audit

import (
	"context"
	"time"
)

// EventType enumerates the security-relevant occurrences worth recording.
type EventType string

const (
	EventLoginSuccess         EventType = "login_success"
	EventLoginFailure         EventType = "login_failure"
	EventLogout               EventType = "logout"
	EventTokenRefresh         EventType = "token_refresh"
	EventPasswordChange       EventType = "password_change"
	EventPasswordResetSuccess EventType = "password_reset_success"
	EventRecoveryRequested    EventType = "recovery_requested"
	EventPermissionDenied     EventType = "permission_denied"
)

// Severity classifies an event for filtering and alerting.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one immutable audit record. Actor fields stay empty for
// pre-authentication failures where no identity was resolved.
type Event struct {
	ID            string         `json:"id"`
	Time          time.Time      `json:"time"`
	Type          EventType      `json:"type"`
	Severity      Severity       `json:"severity"`
	ActorID       string         `json:"actor_id,omitempty"`
	ActorUsername string         `json:"actor_username,omitempty"`
	ActorRole     string         `json:"actor_role,omitempty"`
	IP            string         `json:"ip,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// Filter narrows a query. Zero values mean "no constraint".
type Filter struct {
	ActorID string
	Type    EventType
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

// Store is the persistence contract for audit events. Append must be safe
// under concurrent writers; Query returns events newest-first.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
