package quota

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a [Store] backed by an in-process map. Counters do not
// survive a restart, which matches the daily-reset semantics closely enough
// for single-instance deployments without PostgreSQL.
type MemoryStore struct {
	limits map[string]int64
	now    func() time.Time

	mu     sync.Mutex
	counts map[memoryKey]int64
}

type memoryKey struct {
	scope    string
	resource string
	day      string
}

// MemoryOption is a functional option for [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store with the given per-resource daily limits.
// Resources absent from limits (or with a non-positive limit) are unlimited.
func NewMemoryStore(limits map[string]int64, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		limits: limits,
		now:    time.Now,
		counts: make(map[memoryKey]int64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CheckAndIncrement implements [Store].
func (s *MemoryStore) CheckAndIncrement(_ context.Context, scope, resource string, n int64) (Decision, error) {
	limit := s.limits[resource]
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := memoryKey{scope: scope, resource: resource, day: DayBucket(s.now())}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.counts[key]
	if cur+n > limit {
		return Decision{Allowed: false, Count: cur, Limit: limit}, nil
	}
	s.counts[key] = cur + n
	return Decision{Allowed: true, Count: cur + n, Limit: limit}, nil
}

// Usage implements [Store].
func (s *MemoryStore) Usage(_ context.Context, scope, resource string) (Decision, error) {
	limit := s.limits[resource]
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := memoryKey{scope: scope, resource: resource, day: DayBucket(s.now())}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.counts[key]
	return Decision{Allowed: cur < limit, Count: cur, Limit: limit}, nil
}
