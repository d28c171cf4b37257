// Package httpapi is the HTTP boundary of the auth service. It translates
// gateway errors into status codes and keeps token internals out of
// responses.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"huntops.org/internal/authn"
	"huntops.org/internal/obs"
	"huntops.org/internal/ratelimit"
	"huntops.org/internal/redisx"
)

// ReadyProbe checks downstream dependencies for /readyz.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *redisx.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Health(ctx); err != nil {
			return err
		}
	}
	return nil
}

// API is the HTTP layer over the authentication gateway.
type API struct {
	mux         *http.ServeMux
	gateway     *authn.Service
	limiter     ratelimit.Limiter
	loginPolicy ratelimit.Policy
	apiPolicy   ratelimit.Policy
	readyProbe  ReadyProbe
	version     string
}

// Config carries the API collaborators.
type Config struct {
	Gateway     *authn.Service
	Limiter     ratelimit.Limiter
	LoginPolicy ratelimit.Policy
	APIPolicy   ratelimit.Policy
	ReadyProbe  ReadyProbe
	Version     string
}

// New builds the API and its routing table.
func New(cfg Config) *API {
	a := &API{
		mux:         http.NewServeMux(),
		gateway:     cfg.Gateway,
		limiter:     cfg.Limiter,
		loginPolicy: cfg.LoginPolicy,
		apiPolicy:   cfg.APIPolicy,
		readyProbe:  cfg.ReadyProbe,
		version:     cfg.Version,
	}
	if a.loginPolicy.Capacity == 0 {
		a.loginPolicy = ratelimit.DefaultLoginPolicy
	}
	if a.apiPolicy.Capacity == 0 {
		a.apiPolicy = ratelimit.DefaultAPIPolicy
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// Credential endpoints carry the strict login-class limit.
	a.mux.Handle("/v1/auth/login", a.limited("login", a.loginPolicy, http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("/v1/auth/refresh", a.limited("login", a.loginPolicy, http.HandlerFunc(a.handleRefresh)))
	a.mux.Handle("/v1/auth/register", a.limited("login", a.loginPolicy, http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("/v1/auth/reset/request", a.limited("login", a.loginPolicy, http.HandlerFunc(a.handleResetRequest)))
	a.mux.Handle("/v1/auth/reset/complete", a.limited("login", a.loginPolicy, http.HandlerFunc(a.handleResetComplete)))

	// Authenticated endpoints carry the general API-class limit.
	a.mux.Handle("/v1/auth/logout", a.limited("api", a.apiPolicy, a.withAuth(http.HandlerFunc(a.handleLogout))))
	a.mux.Handle("/v1/auth/password", a.limited("api", a.apiPolicy, a.withAuth(http.HandlerFunc(a.handleChangePassword))))
	a.mux.Handle("/v1/auth/me", a.limited("api", a.apiPolicy, a.withAuth(http.HandlerFunc(a.handleMe))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(RequestID(Logging(SecurityHeaders(a.mux))))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "huntops-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "huntops-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
