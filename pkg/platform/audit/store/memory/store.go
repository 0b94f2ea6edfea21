// Package memory provides an in-memory audit store for tests and single-node
// development runs.
package memory

import (
	"context"
	"sync"

	audit "bulwark/pkg/platform/audit"
)

const defaultMaxEntries = 10000

// Store keeps the most recent events in memory, oldest dropped first.
// Bounded so a sustained attack cannot grow memory without limit.
type Store struct {
	mu         sync.Mutex
	events     []audit.Event
	maxEntries int
}

// Option configures the Store.
type Option func(*Store)

// WithMaxEntries caps how many events are retained.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{maxEntries: defaultMaxEntries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records an event, evicting the oldest once the cap is reached.
func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if overflow := len(s.events) - s.maxEntries; overflow > 0 {
		s.events = append(s.events[:0:0], s.events[overflow:]...)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	recent := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		recent = append(recent, s.events[i])
	}
	return recent, nil
}

// Len reports how many events are retained. Test helper.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var _ audit.Store = (*Store)(nil)
