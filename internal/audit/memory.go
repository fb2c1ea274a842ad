package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps events in process memory. It is the placeholder backing
// for tests and single-node deployments; the Store interface stays
// storage-agnostic so a durable backend can replace it without touching
// callers.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Event, 0, len(s.events))
	// Walk backwards: newest-first by insertion order.
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if filter.ActorID != "" && event.ActorID != filter.ActorID {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && event.Time.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && event.Time.After(filter.To) {
			continue
		}
		matched = append(matched, event)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, event := range s.events {
		if event.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return removed, nil
}
