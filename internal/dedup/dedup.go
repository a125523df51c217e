// Package dedup suppresses repeat alerts for the same market and direction
// within a time window.
package dedup

import (
	"sync"
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
)

// DefaultTTL is the default suppression window.
const DefaultTTL = 6 * time.Hour

// Store is an in-memory, time-windowed at-most-once filter. It is safe for concurrent use.
// Expired entries are swept on every check.
type Store struct {
	mu       sync.Mutex
	sent     map[models.DedupKey]time.Time
	inFlight map[models.DedupKey]struct{}
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Store with the given window. ttl <= 0 falls back to DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sent:     make(map[models.DedupKey]time.Time),
		inFlight: make(map[models.DedupKey]struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsDuplicate reports whether key was marked sent within the window.
func (s *Store) IsDuplicate(key models.DedupKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDuplicateLocked(key, s.now())
}

// MarkSent records key as sent now, overwriting any earlier entry.
func (s *Store) MarkSent(key models.DedupKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[key] = s.now()
}

// Claim atomically checks key and, if it is neither a duplicate nor claimed by
// another caller, reserves it. A successful Claim must be followed by Complete
// or Release.
func (s *Store) Claim(key models.DedupKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	if s.isDuplicateLocked(key, s.now()) {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

// Complete marks a claimed key as sent and drops the reservation.
func (s *Store) Complete(key models.DedupKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
	s.sent[key] = s.now()
}

// Release drops a reservation without marking the key sent.
func (s *Store) Release(key models.DedupKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// Len returns the number of unexpired sent entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.sent)
}

func (s *Store) isDuplicateLocked(key models.DedupKey, now time.Time) bool {
	s.sweepLocked(now)
	_, ok := s.sent[key]
	return ok
}

func (s *Store) sweepLocked(now time.Time) {
	for k, sentAt := range s.sent {
		if now.Sub(sentAt) > s.ttl {
			delete(s.sent, k)
		}
	}
}
