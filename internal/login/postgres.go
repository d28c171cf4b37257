package login

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"huntops.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Counter and lock updates are
// single-row atomic statements, so concurrent attempts against the same
// credential cannot lose updates.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps the database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	authorities, _ := json.Marshal(c.Authorities)
	_, err := s.db.ExecContext(ctx,
		`insert into user_credentials(id, subject, password_hash, authorities) values($1,$2,$3,$4)`,
		c.ID, c.Subject, c.PasswordHash, authorities,
	)
	return err
}

func (s *PGStore) FindBySubject(ctx context.Context, subject string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, subject, password_hash, authorities, failed_attempts, locked, locked_until,
		        reset_token, reset_token_expires_at, created_at, updated_at
		   from user_credentials where subject=$1`, subject,
	)
	var (
		c           Credential
		authorities []byte
		lockedUntil sql.NullTime
		resetToken  sql.NullString
		resetExpiry sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Subject, &c.PasswordHash, &authorities, &c.FailedAttempts,
		&c.Locked, &lockedUntil, &resetToken, &resetExpiry, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(authorities, &c.Authorities)
	if lockedUntil.Valid {
		c.LockedUntil = &lockedUntil.Time
	}
	if resetToken.Valid {
		c.ResetToken = resetToken.String
	}
	if resetExpiry.Valid {
		c.ResetTokenExpiresAt = &resetExpiry.Time
	}
	return &c, nil
}

func (s *PGStore) IncrementFailedAttempts(ctx context.Context, subject string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`update user_credentials
		    set failed_attempts = failed_attempts + 1, updated_at = now()
		  where subject=$1
		  returning failed_attempts`, subject,
	)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (s *PGStore) SetLock(ctx context.Context, subject string, until time.Time) error {
	return s.exec(ctx,
		`update user_credentials set locked = true, locked_until = $2, updated_at = now() where subject=$1`,
		subject, until)
}

func (s *PGStore) ResetLoginState(ctx context.Context, subject string) error {
	return s.exec(ctx,
		`update user_credentials set failed_attempts = 0, locked = false, locked_until = null, updated_at = now() where subject=$1`,
		subject)
}

func (s *PGStore) UpdatePassword(ctx context.Context, subject, passwordHash string) error {
	return s.exec(ctx,
		`update user_credentials
		    set password_hash = $2, reset_token = null, reset_token_expires_at = null, updated_at = now()
		  where subject=$1`,
		subject, passwordHash)
}

func (s *PGStore) SaveResetToken(ctx context.Context, subject, resetToken string, expiresAt time.Time) error {
	return s.exec(ctx,
		`update user_credentials set reset_token = $2, reset_token_expires_at = $3, updated_at = now() where subject=$1`,
		subject, resetToken, expiresAt)
}

func (s *PGStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
