package authn

import "context"

type identityContextKey struct{}

// Identity is the resolved caller of an authenticated request. It travels in
// the request context; there is no ambient global holding the current user.
type Identity struct {
	Subject     string
	Authorities []string
}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.Subject == "" {
		return Identity{}, false
	}
	return id, true
}

// SubjectFromContext returns the authenticated subject if present.
func SubjectFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.Subject, true
}

// HasAuthority reports whether the context identity carries the authority.
func HasAuthority(ctx context.Context, authority string) bool {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	for _, a := range id.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
