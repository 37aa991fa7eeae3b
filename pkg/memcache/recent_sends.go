package mem

import (
	"sync"
	"time"
)

// RecentSendStore remembers which email jobs were delivered recently so the
// worker can drop the duplicate deliveries an at-least-once queue produces.
// Entries are process-local; losing them on restart only risks one extra
// email, which the contract allows.
type RecentSendStore interface {
	MarkSent(key string, ttl time.Duration)

	// Seen reports whether key was marked within its TTL.
	Seen(key string) bool
}

type entry struct {
	expiresAt time.Time
}

type RecentSends struct {
	mu   sync.RWMutex
	data map[string]entry
}

func NewRecentSends() *RecentSends {
	return &RecentSends{
		data: make(map[string]entry),
	}
}

func (s *RecentSends) MarkSent(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *RecentSends) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.data, key) // cleanup expired
		return false
	}
	return true
}
