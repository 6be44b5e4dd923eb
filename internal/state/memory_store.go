package state

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps dedup identities in process memory.
// Params: per-family key maps and injected clock.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	families map[Family]map[string]time.Time
}

// NewMemoryStore creates in-memory dedup store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized in-memory store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	families := make(map[Family]map[string]time.Time, len(Families))
	for _, family := range Families {
		families[family] = make(map[string]time.Time)
	}
	return &MemoryStore{now: now, families: families}
}

// MarkIfAbsent records identity when it is not tracked yet.
// Params: family, identity key and expiry stored with it.
// Returns: true when the caller owns the first sighting of this identity.
func (s *MemoryStore) MarkIfAbsent(family Family, key string, expiry time.Time) bool {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.families[family]
	if !ok {
		entries = make(map[string]time.Time)
		s.families[family] = entries
	}
	if _, seen := entries[key]; seen {
		return false
	}
	entries[key] = expiry
	return true
}

// Sweep drops identities whose expiry is before now.
// Params: sweep reference time; zero value uses store clock.
// Returns: number of removed identities.
func (s *MemoryStore) Sweep(now time.Time) int {
	if now.IsZero() {
		now = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, entries := range s.families {
		for key, expiry := range entries {
			if now.After(expiry) {
				delete(entries, key)
				removed++
			}
		}
	}
	return removed
}

// Len returns tracked identity count for one family.
func (s *MemoryStore) Len(family Family) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.families[family])
}
