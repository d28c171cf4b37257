package authn

import (
	"errors"
	"fmt"

	"huntops.org/internal/password"
)

var (
	// ErrInvalidCredentials is the single boundary-facing failure for login
	// and password operations. The internal reason (wrong password, unknown
	// subject, bad reset token) is logged but never surfaced, to avoid user
	// enumeration.
	ErrInvalidCredentials = errors.New("authn: invalid credentials")

	// ErrAccountLocked means the credential is inside an active lock window.
	// The caller may retry after the window elapses.
	ErrAccountLocked = errors.New("authn: account temporarily locked")
)

// WeakPasswordError carries the full list of policy violations so callers can
// show everything at once.
type WeakPasswordError struct {
	Violations []password.Violation
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("authn: password rejected by policy (%d violations)", len(e.Violations))
}
