// Package authn orchestrates the login flow: password policy at
// registration, lockout bookkeeping at login, token issuance on success.
package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"huntops.org/internal/login"
	"huntops.org/internal/obs"
	"huntops.org/internal/password"
	"huntops.org/internal/token"
)

// resetTokenTTL bounds how long a password-reset token stays usable.
const resetTokenTTL = time.Hour

// AuditFunc receives fire-and-forget audit events. A nil sink disables
// auditing.
type AuditFunc func(ctx context.Context, event string, fields map[string]any)

// Service is the authentication gateway.
type Service struct {
	creds  login.Store
	guard  *login.Guard
	tokens *token.Service
	policy *password.Policy
	now    func() time.Time
	audit  AuditFunc
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAuditSink wires the audit event sink.
func WithAuditSink(fn AuditFunc) Option {
	return func(s *Service) {
		s.audit = fn
	}
}

// NewService constructs the gateway over its collaborators.
func NewService(creds login.Store, guard *login.Guard, tokens *token.Service, policy *password.Policy, opts ...Option) (*Service, error) {
	if creds == nil || guard == nil || tokens == nil || policy == nil {
		return nil, errors.New("authn: all collaborators are required")
	}
	s := &Service{
		creds:  creds,
		guard:  guard,
		tokens: tokens,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) emit(ctx context.Context, event string, fields map[string]any) {
	if s.audit != nil {
		s.audit(ctx, event, fields)
	}
}

// Login verifies credentials and issues an access/refresh pair. Failures
// surface as ErrInvalidCredentials or ErrAccountLocked only; the specific
// internal reason is recorded through audit and metrics.
func (s *Service) Login(ctx context.Context, subject, plaintext string) (token.Pair, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || plaintext == "" {
		obs.CountLoginAttempt("invalid")
		return token.Pair{}, ErrInvalidCredentials
	}

	cred, err := s.creds.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, login.ErrNotFound) {
			obs.CountLoginAttempt("invalid")
			s.emit(ctx, "auth.login.failure", map[string]any{"subject": subject, "reason": "unknown_subject"})
			return token.Pair{}, ErrInvalidCredentials
		}
		return token.Pair{}, err
	}

	if s.guard.IsLocked(cred) {
		obs.CountLoginAttempt("locked")
		s.emit(ctx, "auth.login.rejected_locked", map[string]any{"subject": subject, "locked_until": cred.LockedUntil})
		return token.Pair{}, ErrAccountLocked
	}

	if err := login.VerifyPassword(cred.PasswordHash, plaintext); err != nil {
		locked, gerr := s.guard.RecordFailure(ctx, s.creds, cred)
		if gerr != nil {
			return token.Pair{}, gerr
		}
		obs.CountLoginAttempt("invalid")
		fields := map[string]any{"subject": subject, "reason": "wrong_password", "failed_attempts": cred.FailedAttempts}
		s.emit(ctx, "auth.login.failure", fields)
		if locked {
			s.emit(ctx, "auth.account.locked", map[string]any{"subject": subject, "locked_until": cred.LockedUntil})
		}
		return token.Pair{}, ErrInvalidCredentials
	}

	if err := s.guard.RecordSuccess(ctx, s.creds, cred); err != nil {
		return token.Pair{}, err
	}

	pair, err := s.tokens.IssuePair(cred.Subject, cred.Authorities)
	if err != nil {
		return token.Pair{}, err
	}
	obs.CountLoginAttempt("success")
	s.emit(ctx, "auth.login.success", map[string]any{"subject": subject})
	return pair, nil
}

// Logout revokes the presented token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if err := s.tokens.Revoke(ctx, rawToken); err != nil {
		return err
	}
	s.emit(ctx, "auth.logout", nil)
	return nil
}

// Refresh exchanges a refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (token.Pair, error) {
	return s.tokens.Refresh(ctx, rawRefresh)
}

// Register creates a credential after enforcing the password policy.
func (s *Service) Register(ctx context.Context, subject, plaintext string, authorities []string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidCredentials
	}
	if violations := s.policy.Validate(plaintext); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	hash, err := login.HashPassword(plaintext)
	if err != nil {
		return err
	}
	cred := &login.Credential{Subject: subject, PasswordHash: hash, Authorities: authorities}
	if err := s.creds.Create(ctx, cred); err != nil {
		return err
	}
	s.emit(ctx, "auth.register", map[string]any{"subject": subject, "authorities": authorities})
	return nil
}

// ChangePassword verifies the old password and installs a new one, subject to
// the policy.
func (s *Service) ChangePassword(ctx context.Context, subject, oldPassword, newPassword string) error {
	cred, err := s.creds.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, login.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := login.VerifyPassword(cred.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	if violations := s.policy.Validate(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	hash, err := login.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.creds.UpdatePassword(ctx, subject, hash); err != nil {
		return err
	}
	s.emit(ctx, "auth.password.changed", map[string]any{"subject": subject})
	return nil
}

// RequestPasswordReset stores a fresh reset token against the credential and
// returns it for out-of-band delivery. Unknown subjects report
// ErrInvalidCredentials; callers should hide that from the requester.
func (s *Service) RequestPasswordReset(ctx context.Context, subject string) (string, error) {
	if _, err := s.creds.FindBySubject(ctx, subject); err != nil {
		if errors.Is(err, login.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	resetToken := uuid.NewString()
	expiresAt := s.now().UTC().Add(resetTokenTTL)
	if err := s.creds.SaveResetToken(ctx, subject, resetToken, expiresAt); err != nil {
		return "", err
	}
	s.emit(ctx, "auth.password.reset_requested", map[string]any{"subject": subject})
	return resetToken, nil
}

// CompletePasswordReset exchanges a valid reset token for a new password.
// Token mismatch and token expiry both collapse into ErrInvalidCredentials.
func (s *Service) CompletePasswordReset(ctx context.Context, subject, resetToken, newPassword string) error {
	cred, err := s.creds.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, login.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if cred.ResetToken == "" || cred.ResetTokenExpiresAt == nil {
		return ErrInvalidCredentials
	}
	if s.now().After(*cred.ResetTokenExpiresAt) {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(cred.ResetToken), []byte(resetToken)) != 1 {
		return ErrInvalidCredentials
	}
	if violations := s.policy.Validate(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	hash, err := login.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.creds.UpdatePassword(ctx, subject, hash); err != nil {
		return err
	}
	s.emit(ctx, "auth.password.reset_completed", map[string]any{"subject": subject})
	return nil
}

// Validate resolves the identity carried by an access token.
func (s *Service) Validate(ctx context.Context, rawToken string) (Identity, token.Claims, error) {
	claims, err := s.tokens.Validate(ctx, rawToken)
	if err != nil {
		return Identity{}, token.Claims{}, err
	}
	if claims.Kind != token.KindAccess {
		return Identity{}, token.Claims{}, token.ErrUnsupportedKind
	}
	return Identity{Subject: claims.Subject, Authorities: claims.Authorities}, claims, nil
}
