package credential

import (
	"context"
	"sync"
)

type memoryStore struct {
	mutex sync.RWMutex
	token string
}

// NewMemory builds an in-memory credential store. The credential does not
// survive a process restart; intended for tests and ephemeral sessions.
func NewMemory() Store {
	return &memoryStore{}
}

func (s *memoryStore) Get(_ context.Context) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.token, nil
}

func (s *memoryStore) Set(_ context.Context, token string) error {
	s.mutex.Lock()
	s.token = token
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	s.token = ""
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
