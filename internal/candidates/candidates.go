// Package candidates keeps the per-flight candidate callsign sets the
// matcher accumulates across polling cycles. Sets expire as a whole after a
// fixed time without updates, so a candidate observed days ago cannot leak
// into a later instance of the same flight.
package candidates

import (
	"sync"
	"time"
)

// DefaultTTL is how long a set survives without being touched.
const DefaultTTL = 24 * time.Hour

type entry struct {
	touched time.Time
	members map[string]bool
}

// Store holds string sets with a shared time-to-live. Safe for concurrent
// use. The zero value is not usable; call New.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	sets map[string]*entry
}

// New returns a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:  ttl,
		now:  time.Now,
		sets: make(map[string]*entry),
	}
}

// Add inserts a member into the named set and refreshes the set's TTL.
func (s *Store) Add(key, member string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &entry{members: make(map[string]bool)}
		s.sets[key] = e
	}
	e.members[member] = true
	e.touched = s.now()
}

// Members returns the named set, or nil if it is absent or expired.
func (s *Store) Members(key string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil
	}
	out := make(map[string]bool, len(e.members))
	for m := range e.members {
		out[m] = true
	}
	return out
}

// Contains reports whether the named set holds the member.
func (s *Store) Contains(key, member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	return e != nil && e.members[member]
}

// live returns the entry for key, dropping it first if expired.
// Callers hold s.mu.
func (s *Store) live(key string) *entry {
	e, ok := s.sets[key]
	if !ok {
		return nil
	}
	if s.now().Sub(e.touched) > s.ttl {
		delete(s.sets, key)
		return nil
	}
	return e
}

// Sweep drops every expired set. The matcher calls it once per cycle so
// abandoned flight keys do not accumulate.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, e := range s.sets {
		if now.Sub(e.touched) > s.ttl {
			delete(s.sets, key)
		}
	}
}
