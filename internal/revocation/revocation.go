// Package revocation tracks token identifiers invalidated before their
// natural expiry (logout, administrative revocation).
//
// Every token validation consults the store by jti. Entries carry a TTL equal
// to the token's remaining lifetime so the store never accumulates entries
// for tokens that would have expired anyway. In deployments with more than
// one instance the store must be shared (Redis); the in-memory implementation
// is only correct for a single process.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Store is the registry of revoked token identifiers.
type Store interface {
	// Revoke marks a token id as revoked for the given TTL. Revoking an
	// already-revoked id is safe; the later TTL wins.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether the token id is currently revoked. An error
	// means the store could not be consulted; callers must treat that as a
	// failed validation (fail closed).
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Memory is a process-local Store for single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// MemoryOption configures the in-memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory creates an in-memory revocation store and starts a background
// sweep of expired entries.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		revoked: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep(5 * time.Minute)
	return m
}

// Revoke marks the id revoked until now+ttl.
func (m *Memory) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.now().Add(ttl)
	return nil
}

// IsRevoked reports whether the id is revoked and the revocation window has
// not elapsed.
func (m *Memory) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if m.now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// Close stops the background sweep.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for jti, expiry := range m.revoked {
				if now.After(expiry) {
					delete(m.revoked, jti)
				}
			}
			m.mu.Unlock()
		}
	}
}
