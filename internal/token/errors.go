package token

import "errors"

// Validation failures form an exhaustive taxonomy: every way a token can be
// rejected is a distinct, testable error value rather than a boolean.
var (
	// ErrExpired means the token's exp claim is at or before the current instant.
	ErrExpired = errors.New("token: expired")

	// ErrMalformed means the token could not be parsed as a compact JWT or is
	// missing required claims.
	ErrMalformed = errors.New("token: malformed")

	// ErrSignatureInvalid means the signature does not verify under the
	// configured key.
	ErrSignatureInvalid = errors.New("token: signature invalid")

	// ErrUnsupported means the token was produced with an algorithm or issuer
	// this service does not accept.
	ErrUnsupported = errors.New("token: unsupported")

	// ErrUnsupportedKind means a token of the wrong kind was presented, such
	// as an access token used where a refresh token is required.
	ErrUnsupportedKind = errors.New("token: unsupported kind")

	// ErrRevoked means the token's jti appears in the revocation store.
	ErrRevoked = errors.New("token: revoked")

	// ErrRevocationUnavailable means the revocation store could not be
	// consulted. Validation fails closed: the token is rejected.
	ErrRevocationUnavailable = errors.New("token: revocation store unavailable")
)
