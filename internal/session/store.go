// Package session holds the per-session hand-off store between the analysis
// pipeline and its display stage.
package session

import "sync"

// Hand-off keys. The orchestrator is the only writer of both.
const (
	KeyImage  = "analysisImage"
	KeyResult = "analysisResult"
)

// Store is a session-scoped string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Put(key, value string)
	Delete(key string)
	Clear()
}

// MemoryStore is an in-process Store. Contents die with the session.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}
