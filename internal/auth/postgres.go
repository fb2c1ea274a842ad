package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jobdesk.org/internal/ids"
)

var _ IdentityStore = (*PGIdentityStore)(nil)

// PGIdentityStore implements IdentityStore using PostgreSQL.
type PGIdentityStore struct {
	db *sql.DB
}

// NewPGIdentityStore wraps an open database handle.
func NewPGIdentityStore(db *sql.DB) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

func (s *PGIdentityStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, password_hash, email, role, active,
		       created_at, last_login_at, login_count
		from admins where username = $1`, NormalizeUsername(username))

	var (
		identity  Identity
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&identity.ID, &identity.Username, &identity.PasswordHash,
		&identity.Email, &role, &identity.Active, &identity.CreatedAt,
		&lastLogin, &identity.LoginCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	identity.Role = Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLoginAt = &t
	}
	return &identity, nil
}

func (s *PGIdentityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update admins set password_hash = $1, updated_at = now() where id = $2`,
		passwordHash, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (s *PGIdentityStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update admins set last_login_at = $1, login_count = login_count + 1 where id = $2`,
		at, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// CreateOrUpdate provisions an admin row, used by the seed tooling. The
// username key is normalized before the upsert.
func (s *PGIdentityStore) CreateOrUpdate(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	identity.Username = NormalizeUsername(identity.Username)
	_, err := s.db.ExecContext(ctx, `
		insert into admins (id, username, password_hash, email, role, active)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (username) do update set
			password_hash = excluded.password_hash,
			email = excluded.email,
			role = excluded.role,
			active = excluded.active,
			updated_at = now()`,
		identity.ID, identity.Username, identity.PasswordHash,
		identity.Email, string(identity.Role), identity.Active)
	return err
}
