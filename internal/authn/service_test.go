package authn

import (
	"context"
	"errors"
	"testing"
	"time"

	"huntops.org/internal/login"
	"huntops.org/internal/password"
	"huntops.org/internal/revocation"
	"huntops.org/internal/token"
)

type fixture struct {
	svc   *Service
	creds *login.MemoryStore
	now   *time.Time
}

// newFixture builds a gateway over in-memory stores whose clock follows the
// returned pointer, so tests can advance time.
func newFixture(t *testing.T) (*fixture, *time.Time) {
	t.Helper()
	now := new(time.Time)
	*now = time.Now()
	clock := func() time.Time { return *now }

	revoked := revocation.NewMemory(revocation.WithClock(clock))
	t.Cleanup(revoked.Close)

	tokens, err := token.NewService("fixture-secret-0123456789abcdef", revoked,
		token.WithClock(clock), token.WithAccessTTL(3600*time.Second))
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}

	creds := login.NewMemoryStore()
	guard := login.NewGuard(0, 0, login.WithGuardClock(clock))
	policy := password.NewPolicy(0, 0)

	svc, err := NewService(creds, guard, tokens, policy, WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, creds: creds, now: now}, now
}

const strongPassword = "Str0ng&Secure99"

func register(t *testing.T, f *fixture, subject string) {
	t.Helper()
	if err := f.svc.Register(context.Background(), subject, strongPassword, []string{"ROLE_ANALYST"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestLoginIssuesValidatableTokens(t *testing.T) {
	f, now := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	pair, err := f.svc.Login(ctx, "analyst1", strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	id, claims, err := f.svc.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.Subject != "analyst1" {
		t.Fatalf("unexpected subject: %s", id.Subject)
	}
	if len(id.Authorities) != 1 || id.Authorities[0] != "ROLE_ANALYST" {
		t.Fatalf("unexpected authorities: %v", id.Authorities)
	}
	if claims.Kind != token.KindAccess {
		t.Fatalf("unexpected kind: %s", claims.Kind)
	}

	// Advance past the access TTL: the same token now fails with expiry.
	*now = now.Add(3601 * time.Second)
	if _, _, err := f.svc.Validate(ctx, pair.AccessToken); !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	if _, err := f.svc.Login(ctx, "analyst1", "Wr0ng&Secret99x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown subject yields the same boundary error.
	if _, err := f.svc.Login(ctx, "ghost", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown subject, got %v", err)
	}
}

func TestRepeatedFailuresLockTheAccount(t *testing.T) {
	f, now := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Login(ctx, "analyst1", "Wr0ng&Secret99x"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}

	// Even the correct password is rejected while locked.
	if _, err := f.svc.Login(ctx, "analyst1", strongPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// The lock lapses after its window; a correct login then resets state.
	*now = now.Add(31 * time.Minute)
	if _, err := f.svc.Login(ctx, "analyst1", strongPassword); err != nil {
		t.Fatalf("login after lock window: %v", err)
	}

	cred, err := f.creds.FindBySubject(ctx, "analyst1")
	if err != nil {
		t.Fatalf("FindBySubject: %v", err)
	}
	if cred.FailedAttempts != 0 || cred.Locked {
		t.Fatalf("expected reset state, got %+v", cred)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	pair, err := f.svc.Login(ctx, "analyst1", strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.svc.Validate(ctx, pair.AccessToken); !errors.Is(err, token.ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestRefreshFlow(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	pair, err := f.svc.Login(ctx, "analyst1", strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := f.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, _, err := f.svc.Validate(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("Validate refreshed token: %v", err)
	}

	// An access token is not accepted where a refresh token is required.
	if _, err := f.svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, token.ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
}

func TestRegisterEnforcesPolicy(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()

	err := f.svc.Register(ctx, "analyst2", "password123", nil)
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	if len(weak.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}

	register(t, f, "analyst2")
	if err := f.svc.Register(ctx, "analyst2", strongPassword, nil); !errors.Is(err, login.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	const next = "N3w&Different77"
	if err := f.svc.ChangePassword(ctx, "analyst1", "wrong-old", next); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, "analyst1", strongPassword, "short"); err == nil {
		t.Fatal("expected weak password rejection")
	}
	if err := f.svc.ChangePassword(ctx, "analyst1", strongPassword, next); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Login(ctx, "analyst1", next); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f, now := newFixture(t)
	ctx := context.Background()
	register(t, f, "analyst1")

	resetToken, err := f.svc.RequestPasswordReset(ctx, "analyst1")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	const next = "N3w&Different77"
	if err := f.svc.CompletePasswordReset(ctx, "analyst1", "bogus-token", next); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong token, got %v", err)
	}
	if err := f.svc.CompletePasswordReset(ctx, "analyst1", resetToken, next); err != nil {
		t.Fatalf("CompletePasswordReset: %v", err)
	}
	if _, err := f.svc.Login(ctx, "analyst1", next); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}

	// A completed reset clears the token; replays fail.
	if err := f.svc.CompletePasswordReset(ctx, "analyst1", resetToken, "An0ther&Fresh88"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected replay rejection, got %v", err)
	}

	// Expired tokens are rejected.
	resetToken, err = f.svc.RequestPasswordReset(ctx, "analyst1")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	*now = now.Add(2 * time.Hour)
	if err := f.svc.CompletePasswordReset(ctx, "analyst1", resetToken, "An0ther&Fresh88"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}
