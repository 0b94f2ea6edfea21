// Package lockout provides storage backends for account lockout records.
// Stores are pure I/O; lock decisions and expiry evaluation belong to the
// lockout service.
package lockout

import (
	"context"
	"sync"
	"time"

	"bulwark/internal/ratelimit/models"
)

// MemoryStore keeps lockout records in process memory. Suitable for tests
// and single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	lockouts map[string]models.AccountLockout
}

// NewMemory creates an empty in-memory lockout store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		lockouts: make(map[string]models.AccountLockout),
	}
}

func (s *MemoryStore) Get(_ context.Context, identifier string) (*models.AccountLockout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.lockouts[identifier]; ok {
		return &l, nil
	}
	return nil, nil
}

func (s *MemoryStore) Upsert(_ context.Context, lockout models.AccountLockout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lockouts[lockout.Identifier] = lockout
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lockouts, identifier)
	return nil
}

func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for identifier, l := range s.lockouts {
		if l.LockedUntil.Before(cutoff) {
			delete(s.lockouts, identifier)
			deleted++
		}
	}
	return deleted, nil
}
