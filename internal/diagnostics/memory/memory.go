// Package memory keeps diagnostics events in a bounded in-process buffer.
// It backs the "memory" diagnostics backend and is used as a fake in tests.
package memory

import (
	"context"
	"sync"

	"retire/internal/diagnostics"
)

const DefaultCapacity = 1000

type Store struct {
	mu     sync.Mutex
	events []diagnostics.Event
	next   int
	full   bool
}

// New returns a store holding at most capacity events; older events are
// overwritten. A capacity of zero or less uses DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{events: make([]diagnostics.Event, capacity)}
}

func (s *Store) Record(_ context.Context, ev diagnostics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = ev
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]diagnostics.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lenLocked()
	limit = diagnostics.NormalizeLimit(limit, n)
	if n == 0 {
		return []diagnostics.Event{}, nil
	}
	out := make([]diagnostics.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lenLocked()
}

func (s *Store) lenLocked() int {
	if s.full {
		return len(s.events)
	}
	return s.next
}

func (s *Store) Close() error { return nil }
