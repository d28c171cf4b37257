package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedKeyPrefix namespaces revocation entries in the shared store.
const revokedKeyPrefix = "revoked:"

// Redis is a Store backed by a shared Redis instance. The TTL on each key is
// the token's remaining lifetime, so cleanup is native to the store and the
// list stays correct across service instances.
type Redis struct {
	client redis.Cmdable
}

// NewRedis creates a Redis-backed revocation store.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Revoke writes the jti with the remaining-lifetime TTL. The write is
// idempotent: a repeated revoke simply refreshes the TTL (last writer wins).
func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation: set %s: %w", jti, err)
	}
	return nil
}

// IsRevoked performs a point lookup for the jti.
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists %s: %w", jti, err)
	}
	return n > 0, nil
}
