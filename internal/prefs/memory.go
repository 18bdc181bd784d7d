package prefs

import "sync"

// MemoryStore is an in-process Store backed by a map. It is safe for
// concurrent use and is the backend of choice for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]any)}
}

func (s *MemoryStore) Get(key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return Clone(v), true, nil
}

func (s *MemoryStore) Set(key string, value any) error {
	if value == nil {
		return s.Delete(key)
	}

	normalized, err := Normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = normalized
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) All() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMap(s.data), nil
}

func (s *MemoryStore) Close() error { return nil }
