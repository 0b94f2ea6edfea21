package bucket

import (
	"context"
	"strings"
	"sync"
	"time"

	"bulwark/internal/ratelimit/models"
	psync "bulwark/pkg/platform/sync"
)

// MemoryStore keeps fixed-window counters in process memory. Suitable for
// tests and single-instance deployments; shared deployments need the
// postgres or redis store so every process sees the same counters.
type MemoryStore struct {
	// locks serializes the read-modify-write protocol per key without
	// serializing unrelated keys against each other.
	locks *psync.ShardedMutex

	mu      sync.RWMutex // guards the map structure only
	buckets map[string]models.Bucket
}

// NewMemory creates an empty in-memory bucket store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		locks:   psync.NewShardedMutex(),
		buckets: make(map[string]models.Bucket),
	}
}

func (s *MemoryStore) Get(_ context.Context, identifier string, action models.Action) (*models.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.buckets[compositeKey(identifier, action)]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *MemoryStore) UpsertIncrement(_ context.Context, identifier string, action models.Action, now time.Time, window time.Duration) (*models.Bucket, error) {
	key := compositeKey(identifier, action)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.mu.RLock()
	existing, ok := s.buckets[key]
	s.mu.RUnlock()

	var next models.Bucket
	if !ok || existing.Expired(now) {
		next = models.Bucket{
			Identifier: identifier,
			Action:     action,
			Attempts:   1,
			ResetAt:    now.Add(window),
		}
	} else {
		next = existing
		next.Attempts++
	}

	s.mu.Lock()
	s.buckets[key] = next
	s.mu.Unlock()

	return &next, nil
}

func (s *MemoryStore) SetResetAt(_ context.Context, identifier string, action models.Action, resetAt time.Time) error {
	key := compositeKey(identifier, action)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		b.ResetAt = resetAt
		s.buckets[key] = b
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier string, action models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, compositeKey(identifier, action))
	return nil
}

func (s *MemoryStore) DeleteByIdentifier(_ context.Context, identifier string) (int64, error) {
	prefix := identifier + keySeparator
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(s.buckets, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, b := range s.buckets {
		if b.ResetAt.Before(cutoff) {
			delete(s.buckets, key)
			deleted++
		}
	}
	return deleted, nil
}

// keySeparator cannot appear in a sanitized key segment, so composite keys
// for distinct (identifier, action) pairs never collide.
const keySeparator = "\x00"

func compositeKey(identifier string, action models.Action) string {
	return identifier + keySeparator + string(action)
}
