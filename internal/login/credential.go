// Package login owns credential records and the failed-attempt/lockout state
// machine applied to them.
package login

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("login: credential not found")
	ErrAlreadyExists = errors.New("login: credential already exists")
)

// Credential is the persisted login record for one subject. The attempt/lock
// fields mutate on every login attempt; the reset-token fields mutate on
// password-reset request and completion.
type Credential struct {
	ID             string
	Subject        string
	PasswordHash   string
	Authorities    []string
	FailedAttempts int
	Locked         bool
	LockedUntil    *time.Time

	ResetToken          string
	ResetTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists credentials. Mutations of the attempt/lock fields must be
// atomic per credential so concurrent login attempts cannot lose updates.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	FindBySubject(ctx context.Context, subject string) (*Credential, error)

	// IncrementFailedAttempts atomically bumps the counter and returns the
	// new value.
	IncrementFailedAttempts(ctx context.Context, subject string) (int, error)

	// SetLock marks the credential locked until the given instant.
	SetLock(ctx context.Context, subject string, until time.Time) error

	// ResetLoginState clears the failed-attempt counter and the lock.
	ResetLoginState(ctx context.Context, subject string) error

	// UpdatePassword replaces the password hash and clears any pending
	// reset token.
	UpdatePassword(ctx context.Context, subject, passwordHash string) error

	// SaveResetToken stores a pending password-reset token and its expiry.
	SaveResetToken(ctx context.Context, subject, resetToken string, expiresAt time.Time) error
}
