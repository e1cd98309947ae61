package internal

import "sync"

// Store holds the latest UtilizationSnapshot. It has a single writer (the
// sampler) and any number of readers; readers never see a partial update.
type Store struct {
	mu   sync.RWMutex
	snap UtilizationSnapshot
}

// Store replaces the snapshot.
func (s *Store) Store(snap UtilizationSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Load returns a copy of the snapshot, waiting for an in-flight write.
func (s *Store) Load() UtilizationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// TryLoad returns a copy of the snapshot without blocking. It reports false
// when the writer holds the lock.
func (s *Store) TryLoad() (UtilizationSnapshot, bool) {
	if !s.mu.TryRLock() {
		return UtilizationSnapshot{}, false
	}
	defer s.mu.RUnlock()
	return s.snap, true
}
