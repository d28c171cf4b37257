package login

import (
	"context"
	"time"

	"huntops.org/internal/obs"
)

const (
	// DefaultLockoutThreshold is the failed-attempt count that triggers a lock.
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a triggered lock holds.
	DefaultLockoutDuration = 30 * time.Minute
)

// Guard applies the failed-attempt/lockout policy to credential records.
//
// Lock expiry is lazy: IsLocked evaluates the window against the current
// time, and nothing actively clears an elapsed lock. The failed-attempt
// counter is NOT reset by the passage of time, only by RecordSuccess; a
// subject who waits out a lock and fails once more re-locks immediately.
// That carry-over is intended policy, not an oversight.
type Guard struct {
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardClock overrides the time source (tests).
func WithGuardClock(fn func() time.Time) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGuard creates a Guard. Non-positive threshold or duration fall back to
// the defaults.
func NewGuard(threshold int, lockout time.Duration, opts ...GuardOption) *Guard {
	g := &Guard{
		threshold: threshold,
		lockout:   lockout,
		now:       time.Now,
	}
	if g.threshold <= 0 {
		g.threshold = DefaultLockoutThreshold
	}
	if g.lockout <= 0 {
		g.lockout = DefaultLockoutDuration
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsLocked reports whether the credential is inside an active lock window.
func (g *Guard) IsLocked(c *Credential) bool {
	return c.Locked && c.LockedUntil != nil && g.now().Before(*c.LockedUntil)
}

// RecordFailure increments the failed-attempt counter atomically through the
// store and locks the credential once the threshold is reached. It returns
// whether this failure triggered the lock. The passed credential is updated
// in place to reflect the persisted state.
func (g *Guard) RecordFailure(ctx context.Context, store Store, c *Credential) (bool, error) {
	attempts, err := store.IncrementFailedAttempts(ctx, c.Subject)
	if err != nil {
		return false, err
	}
	c.FailedAttempts = attempts

	if attempts < g.threshold {
		return false, nil
	}

	until := g.now().Add(g.lockout)
	if err := store.SetLock(ctx, c.Subject, until); err != nil {
		return false, err
	}
	c.Locked = true
	c.LockedUntil = &until
	obs.CountLockout()
	return true, nil
}

// RecordSuccess clears the counter and the lock after a successful login.
func (g *Guard) RecordSuccess(ctx context.Context, store Store, c *Credential) error {
	if err := store.ResetLoginState(ctx, c.Subject); err != nil {
		return err
	}
	c.FailedAttempts = 0
	c.Locked = false
	c.LockedUntil = nil
	return nil
}
