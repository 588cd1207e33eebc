package storage

import (
	"context"
	"sync"
)

type MemoryStorage struct {
	states map[string][]byte
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		states: make(map[string][]byte),
	}
}

func memoryKey(namespace, key string) string {
	return namespace + "/" + key
}

func (m *MemoryStorage) GetState(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validEntry(namespace, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.states[memoryKey(namespace, key)]
	if !exists {
		return nil, nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStorage) SaveState(ctx context.Context, namespace, key string, data []byte) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.states[memoryKey(namespace, key)] = stored
	return nil
}

func (m *MemoryStorage) DeleteState(ctx context.Context, namespace, key string) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, memoryKey(namespace, key))
	return nil
}
