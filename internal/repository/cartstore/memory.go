package cartstore

import (
	"context"
	"sync"

	"storefront/internal/domain"
)

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() Backend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (m *memoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *memoryBackend) Save(_ context.Context, key string, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}
