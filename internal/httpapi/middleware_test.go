package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"huntops.org/internal/authn"
	"huntops.org/internal/login"
	"huntops.org/internal/password"
	"huntops.org/internal/ratelimit"
	"huntops.org/internal/token"
)

func withClientIP(ip string) http.Header {
	h := http.Header{}
	h.Set("X-Forwarded-For", ip)
	return h
}

func TestLoginRateLimit(t *testing.T) {
	f := newAPIFixture(t,
		ratelimit.Policy{Capacity: 3, Window: 15 * time.Minute},
		ratelimit.DefaultAPIPolicy)
	mustRegister(t, f, "analyst1")

	body := loginRequest{Subject: "analyst1", Password: "Wr0ng&Secret99x"}
	for i := 0; i < 3; i++ {
		rec := f.post(t, "/v1/auth/login", body, withClientIP("10.0.0.1"))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: status=%d, want 401", i+1, rec.Code)
		}
	}

	rec := f.post(t, "/v1/auth/login", body, withClientIP("10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rec.Code)
	}
	if got := rec.Body.String(); got != "Rate limit exceeded. Try again later." {
		t.Fatalf("body=%q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}

	// A different client IP owns its own bucket.
	rec = f.post(t, "/v1/auth/login", body, withClientIP("10.0.0.2"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("other client status=%d, want 401", rec.Code)
	}

	// The bucket refills once the window elapses.
	*f.now = f.now.Add(15*time.Minute + time.Second)
	rec = f.post(t, "/v1/auth/login", body, withClientIP("10.0.0.1"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("after window status=%d, want 401", rec.Code)
	}
}

func TestLoginAndAPIClassesAreIsolated(t *testing.T) {
	f := newAPIFixture(t,
		ratelimit.Policy{Capacity: 1, Window: 15 * time.Minute},
		ratelimit.DefaultAPIPolicy)
	mustRegister(t, f, "analyst1")

	rec := f.post(t, "/v1/auth/login", loginRequest{Subject: "analyst1", Password: testPassword}, withClientIP("10.0.0.1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d", rec.Code)
	}
	access, _ := decodeBody(t, rec)["access_token"].(string)

	// The login bucket is exhausted, but API-class requests still pass.
	h := bearerHeader(access)
	h.Set("X-Forwarded-For", "10.0.0.1")
	rec = f.get(t, "/v1/auth/me", h)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status=%d, want 200", rec.Code)
	}
}

func TestUnauthorizedContractBody(t *testing.T) {
	f := defaultAPIFixture(t)

	rec := f.get(t, "/v1/auth/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != float64(401) || body["error"] != "Unauthorized" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["message"] != "Authentication required" || body["path"] != "/v1/auth/me" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Fatalf("bad timestamp: %v", body["timestamp"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	f := defaultAPIFixture(t)
	rec := f.get(t, "/healthz", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s=%q, want %q", header, got, want)
		}
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	f := defaultAPIFixture(t)

	rec := f.get(t, "/healthz", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request ID")
	}

	h := http.Header{}
	h.Set("X-Request-Id", "req-123")
	rec = f.get(t, "/healthz", h)
	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("X-Request-Id=%q, want req-123", got)
	}
}

type downStore struct{}

func (downStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error { return nil }
func (downStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestRevocationOutageIs503(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	tokens, err := token.NewService("handler-secret-0123456789abcdef", downStore{}, token.WithClock(clock))
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}
	gateway, err := authn.NewService(
		login.NewMemoryStore(),
		login.NewGuard(0, 0, login.WithGuardClock(clock)),
		tokens,
		password.NewPolicy(0, 0),
		authn.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("authn.NewService: %v", err)
	}

	api := New(Config{Gateway: gateway, Version: "test"})
	f := &apiFixture{api: api, handler: api.Handler(), gateway: gateway, now: &now}
	mustRegister(t, f, "analyst1")

	// Issuance does not consult the revocation list, so login succeeds.
	rec := f.post(t, "/v1/auth/login", loginRequest{Subject: "analyst1", Password: testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	access, _ := decodeBody(t, rec)["access_token"].(string)

	// Validation fails closed as 503, not 401: the token may be fine.
	rec = f.get(t, "/v1/auth/me", bearerHeader(access))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}
