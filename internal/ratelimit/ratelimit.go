// Package ratelimit implements the platform's token-bucket rate limiter.
//
// Each key owns a bucket of Capacity tokens refilled in whole-window steps:
// at the start of each elapsed window the bucket gains Capacity tokens,
// capped at Capacity (interval refill, not a continuous drip). A request
// consumes its cost if available and is rejected without mutating the bucket
// otherwise.
//
// Keys identify unauthenticated clients, so they derive from the forwarded
// address, not from a verified identity. In multi-instance deployments the
// Redis store must be used for the limit to be global rather than
// per-instance.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// Policy is a per-route-class limit: Capacity tokens per Window.
type Policy struct {
	Capacity int64
	Window   time.Duration
}

// Route classes and their default policies. Actual values come from
// configuration; these are the fallbacks.
var (
	DefaultLoginPolicy = Policy{Capacity: 5, Window: 15 * time.Minute}
	DefaultAPIPolicy   = Policy{Capacity: 100, Window: time.Minute}
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// TryConsume deducts cost tokens from the key's bucket under the given
	// policy. It returns false, without mutating the bucket, when fewer than
	// cost tokens are available. An error means the backing store could not
	// be reached.
	TryConsume(ctx context.Context, key string, cost int64, policy Policy) (bool, error)
}

// ClientKey derives the rate-limit identity for a request: the first entry of
// X-Forwarded-For when present, otherwise the connection address. This is not
// an authenticated identity; it must work before credentials are known.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
