package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     int64
	lastRefill time.Time
}

// Memory is a process-local Limiter for single-instance deployments and
// tests. Buckets are created lazily on first use.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// MemoryOption configures the in-memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory creates an in-memory limiter and starts the periodic bucket sweep.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweepLoop(time.Minute)
	return m
}

// TryConsume implements Limiter.
func (m *Memory) TryConsume(ctx context.Context, key string, cost int64, policy Policy) (bool, error) {
	if cost <= 0 || policy.Capacity <= 0 || policy.Window <= 0 {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: policy.Capacity, lastRefill: now}
		m.buckets[key] = b
	}

	refill(b, policy, now)

	if b.tokens >= cost {
		b.tokens -= cost
		return true, nil
	}
	return false, nil
}

// refill tops the bucket up by Capacity for each whole window elapsed since
// the last refill, capped at Capacity. The refill instant advances in whole
// windows so partial windows carry over.
func refill(b *bucket, policy Policy, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < policy.Window {
		return
	}
	windows := int64(elapsed / policy.Window)
	b.tokens += windows * policy.Capacity
	if b.tokens > policy.Capacity {
		b.tokens = policy.Capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(windows) * policy.Window)
}

// Sweep removes buckets with zero available tokens. This is a blunt
// heuristic: a bucket mid-replenishment is never swept, while a
// freshly-exhausted bucket is swept even though it refills soon. A swept key
// simply starts over with a full bucket on its next request.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.tokens == 0 {
			delete(m.buckets, key)
		}
	}
}

// Close stops the background sweep.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
