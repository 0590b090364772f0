// internal/quota/memory.go
package quota

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	day    string
	counts map[string]int
}

// NewMemory returns a process-local store. Counters from earlier days are
// dropped as soon as a new day is seen.
func NewMemory() Store {
	return &memoryStore{counts: make(map[string]int)}
}

func (s *memoryStore) roll(day string) {
	if day > s.day {
		s.day = day
		s.counts = make(map[string]int)
	}
}

func (s *memoryStore) Count(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day != s.day {
		return 0, nil
	}
	return s.counts[userID], nil
}

func (s *memoryStore) Incr(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll(day)
	if day != s.day {
		// Late write for a day that has already rolled over.
		return 0, nil
	}
	s.counts[userID]++
	return s.counts[userID], nil
}

func (s *memoryStore) Decr(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day != s.day {
		return 0, nil
	}
	if s.counts[userID] > 0 {
		s.counts[userID]--
	}
	return s.counts[userID], nil
}

func (s *memoryStore) Close() error {
	return nil
}
