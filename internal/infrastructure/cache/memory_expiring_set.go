package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/shopsync/internal/domain/shared"
)

// MemoryExpiringSet implements shared.ExpiringSet with an in-process map.
// Suitable for single-node deployments and tests; a restart forgets every key.
type MemoryExpiringSet struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// MemoryExpiringSetOption configures a MemoryExpiringSet
type MemoryExpiringSetOption func(*MemoryExpiringSet)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryExpiringSetOption {
	return func(s *MemoryExpiringSet) {
		s.now = now
	}
}

// NewMemoryExpiringSet creates the set and starts a sweeper that drops
// expired keys every sweepInterval (5 minutes when zero).
func NewMemoryExpiringSet(sweepInterval time.Duration, opts ...MemoryExpiringSetOption) *MemoryExpiringSet {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	s := &MemoryExpiringSet{
		expiry:   make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

// Add inserts key unless it is present and unexpired
func (s *MemoryExpiringSet) Add(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

// Contains reports whether key is present and unexpired
func (s *MemoryExpiringSet) Contains(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expiry[key]
	return ok && s.now().Before(exp), nil
}

// Remove deletes key
func (s *MemoryExpiringSet) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expiry, key)
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *MemoryExpiringSet) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of keys held, expired ones included until swept
func (s *MemoryExpiringSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryExpiringSet) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryExpiringSet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, key)
		}
	}
}

var _ shared.ExpiringSet = (*MemoryExpiringSet)(nil)
