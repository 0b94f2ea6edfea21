// Package allowlist provides storage backends for rate limit bypass entries.
package allowlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bulwark/internal/ratelimit/models"
	"bulwark/pkg/requestcontext"
)

// MemoryStore keeps allowlist entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.AllowlistEntry
}

// NewMemory creates an empty in-memory allowlist store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]models.AllowlistEntry),
	}
}

func entryKey(entryType models.AllowlistEntryType, identifier string) string {
	return string(entryType) + "\x00" + identifier
}

func (s *MemoryStore) IsAllowlisted(ctx context.Context, entryType models.AllowlistEntryType, identifier string) (bool, error) {
	if identifier == "" {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryKey(entryType, identifier)]
	if !ok {
		return false, nil
	}
	return !entry.IsExpired(requestcontext.Now(ctx)), nil
}

func (s *MemoryStore) Add(_ context.Context, entry *models.AllowlistEntry) error {
	if entry == nil {
		return fmt.Errorf("allowlist entry is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entryKey(entry.Type, entry.Identifier)] = *entry
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, entryType models.AllowlistEntryType, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, entryKey(entryType, identifier))
	return nil
}

// List returns entries that are still live at the request clock. Expired
// rows are filtered, not deleted; DeleteExpiredBefore reclaims them.
func (s *MemoryStore) List(ctx context.Context) ([]*models.AllowlistEntry, error) {
	now := requestcontext.Now(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.AllowlistEntry
	for _, entry := range s.entries {
		if entry.IsExpired(now) {
			continue
		}
		e := entry
		entries = append(entries, &e)
	}
	return entries, nil
}

// DeleteExpiredBefore removes entries whose bypass lapsed before cutoff.
func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, entry := range s.entries {
		if entry.ExpiresAt != nil && entry.ExpiresAt.Before(cutoff) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
