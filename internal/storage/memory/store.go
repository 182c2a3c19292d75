package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/analytics/internal/domain"
)

// Store keeps envelopes in process memory. It is used in development and tests.
type Store struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.EventEnvelope
	order  []uuid.UUID
}

func New() *Store {
	return &Store{events: make(map[uuid.UUID]*domain.EventEnvelope)}
}

func (s *Store) StoreEvents(_ context.Context, batch []*domain.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range batch {
		if _, ok := s.events[env.EventID]; ok {
			continue
		}
		s.events[env.EventID] = env
		s.order = append(s.order, env.EventID)
	}
	return nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*domain.EventEnvelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[id], nil
}

func (s *Store) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.order[:0]
	for _, id := range s.order {
		if s.events[id].Timestamp.Before(cutoff) {
			delete(s.events, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// All returns stored envelopes in insertion order.
func (s *Store) All() []*domain.EventEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.EventEnvelope, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
