package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store over an append-only PostgreSQL table.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, event *Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_events
			(id, occurred_at, event_type, severity, actor_id, actor_username,
			 actor_role, ip, user_agent, resource_type, resource_id, detail)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		event.ID, event.Time, string(event.Type), string(event.Severity),
		event.ActorID, event.ActorUsername, event.ActorRole,
		event.IP, event.UserAgent, event.ResourceType, event.ResourceID, detail,
	)
	return err
}

func (s *PGStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = "+arg(filter.ActorID))
	}
	if filter.Type != "" {
		conditions = append(conditions, "event_type = "+arg(string(filter.Type)))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "occurred_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "occurred_at <= "+arg(filter.To))
	}

	query := `select id, occurred_at, event_type, severity, actor_id,
		actor_username, actor_role, ip, user_agent, resource_type,
		resource_id, detail from audit_events`
	if len(conditions) > 0 {
		query += " where " + strings.Join(conditions, " and ")
	}
	query += " order by occurred_at desc, id desc"
	if filter.Limit > 0 {
		query += " limit " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " offset " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event     Event
			eventType string
			severity  string
			role      string
			detail    []byte
		)
		if err := rows.Scan(&event.ID, &event.Time, &eventType, &severity,
			&event.ActorID, &event.ActorUsername, &role, &event.IP,
			&event.UserAgent, &event.ResourceType, &event.ResourceID, &detail); err != nil {
			return nil, err
		}
		event.Type = EventType(eventType)
		event.Severity = Severity(severity)
		event.ActorRole = role
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &event.Detail)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PGStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from audit_events where occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
