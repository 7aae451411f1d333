// Package memory holds process-local fallbacks for the Redis-backed stores,
// used when redis.enabled is false. State does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"
)

// NonceStore implements ports.NonceStore with an expiring map.
type NonceStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	now     func() time.Time
}

func NewNonceStore() *NonceStore {
	return &NonceStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *NonceStore) CheckAndSet(_ context.Context, scope string, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	key := scope + ":" + nonce
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

func (s *NonceStore) sweep(now time.Time) {
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
}
