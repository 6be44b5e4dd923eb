package state

import "sync"

// MemoryRosterStore keeps gym snapshots in process memory.
type MemoryRosterStore struct {
	mu   sync.RWMutex
	gyms map[string]GymSnapshot
}

// NewMemoryRosterStore creates empty roster cache.
func NewMemoryRosterStore() *MemoryRosterStore {
	return &MemoryRosterStore{gyms: make(map[string]GymSnapshot)}
}

// Replace stores snapshot and returns the one it replaced.
// Params: gym id and new snapshot.
// Returns: previous snapshot and whether gym was known before.
func (s *MemoryRosterStore) Replace(gymID string, snapshot GymSnapshot) (GymSnapshot, bool) {
	snapshot.Trainers = append([]string(nil), snapshot.Trainers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.gyms[gymID]
	s.gyms[gymID] = snapshot
	return previous, ok
}

// Get returns last known snapshot of one gym.
func (s *MemoryRosterStore) Get(gymID string) (GymSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.gyms[gymID]
	if !ok {
		return GymSnapshot{}, false
	}
	snapshot.Trainers = append([]string(nil), snapshot.Trainers...)
	return snapshot, true
}

// NewlyPresent returns names in current that were absent from previous.
// Params: previous and current trainer lists.
// Returns: delta in current order without duplicates.
func NewlyPresent(previous, current []string) []string {
	known := make(map[string]struct{}, len(previous))
	for _, name := range previous {
		known[name] = struct{}{}
	}
	delta := make([]string, 0)
	for _, name := range current {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		delta = append(delta, name)
	}
	return delta
}
