package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"huntops.org/internal/authn"
	"huntops.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// unauthorized writes the fixed 401 contract body. Clients match on this
// shape, so it stays stable across token failure modes.
func unauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"status":    http.StatusUnauthorized,
		"error":     "Unauthorized",
		"message":   "Authentication required",
		"path":      r.URL.Path,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// withAuth resolves the bearer token into an identity on the request
// context. Every token failure collapses into the same 401 body except an
// unreachable revocation store, which is a 503: the token may be fine, the
// service cannot tell.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r)
			return
		}

		id, _, err := a.gateway.Validate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, token.ErrRevocationUnavailable) {
				writeError(w, r, http.StatusServiceUnavailable, "token validation temporarily unavailable")
				return
			}
			unauthorized(w, r)
			return
		}

		ctx := authn.ContextWithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}
