package cache

import (
	"context"
	"sync"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

// Memory is the in-process cache used when no Redis is configured, and by
// tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*domain.ProcessingResult
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]*domain.ProcessingResult{}}
}

func (m *Memory) Get(_ context.Context, key Key) (*domain.ProcessingResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.entries[key.String()]
	return res, ok, nil
}

func (m *Memory) Put(_ context.Context, key Key, result *domain.ProcessingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = result
	return nil
}

// Len is a test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
