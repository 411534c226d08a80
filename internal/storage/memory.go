package storage

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps cursors in a process-local map. Nothing survives a
// restart; use it for tests and throwaway runs.
type memoryStore struct {
	mu      sync.RWMutex
	cursors map[string]int64
}

var _ Store = (*memoryStore)(nil)

func newMemory() *memoryStore {
	return &memoryStore{cursors: map[string]int64{}}
}

func (s *memoryStore) Get(_ context.Context, source string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.cursors[source]
	return id, ok, nil
}

func (s *memoryStore) Commit(_ context.Context, source string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[source]; ok && cur >= id {
		return nil
	}
	s.cursors[source] = id
	return nil
}

func (s *memoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.cursors))
	for k := range s.cursors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) Prune(_ context.Context, keep []string) (int64, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k := range s.cursors {
		if _, ok := keepSet[k]; !ok {
			delete(s.cursors, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryStore) Close() error { return nil }
