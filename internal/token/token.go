// Package token issues, validates, refreshes and revokes the platform's
// signed session tokens.
//
// One signing algorithm (HMAC-SHA256) and one TTL policy apply everywhere;
// tokens produced with any other algorithm are rejected. Validation checks
// the signature, the expiry, and the revocation store, in that order, and
// never caches its result.
package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"huntops.org/internal/obs"
	"huntops.org/internal/revocation"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess is a short-lived token presented on API requests.
	KindAccess Kind = "access"
	// KindRefresh is a long-lived token exchanged for fresh access tokens.
	KindRefresh Kind = "refresh"
)

const (
	defaultIssuer            = "hunting-platform"
	defaultAccessTTL         = time.Hour
	defaultRefreshTTL        = 7 * 24 * time.Hour
	defaultRevocationTimeout = 2 * time.Second
)

// Claims is the verified content of a token.
type Claims struct {
	Subject     string
	Authorities []string
	Kind        Kind
	IssuedAt    time.Time
	ExpiresAt   time.Time
	ID          string // jti
}

// Pair bundles the two tokens returned by a successful login.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// jwtClaims is the wire representation of Claims.
type jwtClaims struct {
	Authorities []string `json:"authorities,omitempty"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens.
type Service struct {
	secret            []byte
	issuer            string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	revoked           revocation.Store
	now               func() time.Time
	revocationTimeout time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the issuer claim written into and required of tokens.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRevocationTimeout bounds the revocation store round trip per validation.
func WithRevocationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.revocationTimeout = d
		}
	}
}

// NewService constructs a token service. The signing secret is required; the
// revocation store is required because validation is incomplete without it.
func NewService(secret string, revoked revocation.Store, opts ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if revoked == nil {
		return nil, errors.New("token: revocation store is required")
	}
	s := &Service{
		secret:            []byte(secret),
		issuer:            defaultIssuer,
		accessTTL:         defaultAccessTTL,
		refreshTTL:        defaultRefreshTTL,
		revoked:           revoked,
		now:               time.Now,
		revocationTimeout: defaultRevocationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured lifetime for the given kind.
func (s *Service) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issue signs a fresh token of the given kind. Issuance has no side effects
// beyond generating a new unique id.
func (s *Service) Issue(subject string, authorities []string, kind Kind) (string, Claims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", Claims{}, errors.New("token: subject is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", Claims{}, ErrUnsupportedKind
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.TTL(kind))
	jti := uuid.NewString()

	wire := jwtClaims{
		Authorities: authorities,
		TokenType:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	obs.CountTokenIssued(string(kind))

	return signed, Claims{
		Subject:     subject,
		Authorities: authorities,
		Kind:        kind,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
		ID:          jti,
	}, nil
}

// IssuePair issues an access/refresh token pair for a successful login.
func (s *Service) IssuePair(subject string, authorities []string) (Pair, error) {
	access, accessClaims, err := s.Issue(subject, authorities, KindAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshClaims, err := s.Issue(subject, authorities, KindRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// Validate verifies signature and expiry, then consults the revocation store.
// It never mutates state; each call re-checks everything. When the revocation
// store is unreachable the token is rejected (fail closed) with
// ErrRevocationUnavailable.
func (s *Service) Validate(ctx context.Context, raw string) (Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return Claims{}, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.revocationTimeout)
	defer cancel()

	revoked, err := s.revoked.IsRevoked(checkCtx, claims.ID)
	if err != nil {
		obs.CountRevocationCheckFailure()
		obs.LogSecurityEvent("revocation_store_unreachable", map[string]any{
			"jti":   claims.ID,
			"error": err.Error(),
		})
		return Claims{}, ErrRevocationUnavailable
	}
	if revoked {
		return Claims{}, ErrRevoked
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself stays valid until its own expiry (sliding policy;
// single-use rotation is deliberately not applied).
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Pair, error) {
	claims, err := s.Validate(ctx, rawRefresh)
	if err != nil {
		return Pair{}, err
	}
	if claims.Kind != KindRefresh {
		return Pair{}, ErrUnsupportedKind
	}

	access, accessClaims, err := s.Issue(claims.Subject, claims.Authorities, KindAccess)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: claims.ExpiresAt,
	}, nil
}

// Revoke extracts the token's id and remaining lifetime and records it in the
// revocation store. Revoking an already-expired token is a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if errors.Is(err, ErrExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, ttl)
}

// parse verifies the compact encoding, signature, issuer and expiry, and maps
// library failures onto the package taxonomy.
func (s *Service) parse(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnsupported
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }), jwt.WithIssuer(s.issuer))
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	wire, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrMalformed
	}
	return claimsFromWire(wire)
}

func claimsFromWire(wire *jwtClaims) (Claims, error) {
	if strings.TrimSpace(wire.Subject) == "" || wire.ID == "" {
		return Claims{}, ErrMalformed
	}
	if wire.IssuedAt == nil || wire.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}
	kind := Kind(wire.TokenType)
	if kind != KindAccess && kind != KindRefresh {
		return Claims{}, ErrUnsupportedKind
	}
	return Claims{
		Subject:     wire.Subject,
		Authorities: wire.Authorities,
		Kind:        kind,
		IssuedAt:    wire.IssuedAt.Time,
		ExpiresAt:   wire.ExpiresAt.Time,
		ID:          wire.ID,
	}, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrUnsupported
	default:
		return ErrMalformed
	}
}
