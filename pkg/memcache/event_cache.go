// pkg/memcache/event_cache.go
package mem

import (
	"sync"
	"time"
)

// EventCache remembers webhook event ids this process has already finished,
// so a quick redelivery is acknowledged without a round trip to the ledger.
type EventCache interface {
	Remember(eventID string, ttl time.Duration)

	// Seen reports whether eventID was remembered and has not expired.
	Seen(eventID string) bool

	Forget(eventID string)
}

type entry struct {
	expiresAt time.Time
}

type ProcessedEvents struct {
	mu    sync.RWMutex
	data  map[string]entry
	limit int
	now   func() time.Time
}

func NewProcessedEvents(limit int) *ProcessedEvents {
	if limit <= 0 {
		limit = 10000
	}
	return &ProcessedEvents{
		data:  make(map[string]entry),
		limit: limit,
		now:   time.Now,
	}
}

func (s *ProcessedEvents) Remember(eventID string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) >= s.limit {
		s.evictExpiredLocked()
	}
	if len(s.data) >= s.limit {
		// still full: drop everything, the ledger stays authoritative
		s.data = make(map[string]entry)
	}
	s.data[eventID] = entry{expiresAt: s.now().Add(ttl)}
}

func (s *ProcessedEvents) Seen(eventID string) bool {
	s.mu.RLock()
	e, ok := s.data[eventID]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	if s.now().After(e.expiresAt) {
		s.Forget(eventID)
		return false
	}
	return true
}

func (s *ProcessedEvents) Forget(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, eventID)
}

func (s *ProcessedEvents) evictExpiredLocked() {
	now := s.now()
	for id, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, id)
		}
	}
}
