package login

import (
	"context"
	"sync"
	"time"

	"huntops.org/internal/ids"
)

// MemoryStore is a process-local Store for tests and single-node development.
// All mutations run under one lock, which satisfies the per-credential
// serialization the guard requires.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]*Credential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[c.Subject]; ok {
		return ErrAlreadyExists
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	clone := *c
	s.creds[c.Subject] = &clone
	return nil
}

func (s *MemoryStore) FindBySubject(ctx context.Context, subject string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) IncrementFailedAttempts(ctx context.Context, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return 0, ErrNotFound
	}
	c.FailedAttempts++
	c.UpdatedAt = time.Now().UTC()
	return c.FailedAttempts, nil
}

func (s *MemoryStore) SetLock(ctx context.Context, subject string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return ErrNotFound
	}
	c.Locked = true
	c.LockedUntil = &until
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ResetLoginState(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return ErrNotFound
	}
	c.FailedAttempts = 0
	c.Locked = false
	c.LockedUntil = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, subject, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return ErrNotFound
	}
	c.PasswordHash = passwordHash
	c.ResetToken = ""
	c.ResetTokenExpiresAt = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SaveResetToken(ctx context.Context, subject, resetToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[subject]
	if !ok {
		return ErrNotFound
	}
	c.ResetToken = resetToken
	c.ResetTokenExpiresAt = &expiresAt
	c.UpdatedAt = time.Now().UTC()
	return nil
}
