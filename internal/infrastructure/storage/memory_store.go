package storage

import (
	"context"
	"sync"

	"twintalk/internal/core/domain"
)

// MemoryStore keeps artifacts for the process lifetime. Used in tests and
// when recording.storage is "memory".
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = append([]byte(nil), data...)
	return "memory://" + name, nil
}

func (s *MemoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[name]
	if !ok {
		return nil, domain.ErrArtifactNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
