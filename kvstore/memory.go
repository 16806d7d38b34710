package kvstore

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is a map-backed Store for tests and embedding hosts that bring
// their own persistence.
type Memory struct {
	*notifier
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		notifier: newNotifier(slog.Default()),
		m:        make(map[string]string),
	}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	old := s.m[key]
	s.m[key] = value
	s.mu.Unlock()

	s.notify(key, old, value, false)
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	old, had := s.m[key]
	delete(s.m, key)
	s.mu.Unlock()

	if had {
		s.notify(key, old, "", false)
	}
	return nil
}

func (s *Memory) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Memory) Close() error { return nil }
