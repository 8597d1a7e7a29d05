package blob

import (
	"context"
	"sync"
)

// Memory is the in-memory store.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	digest := Digest(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[digest]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.objects[digest] = cp
	}
	return digest, nil
}

func (m *Memory) Get(_ context.Context, digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, ErrBadDigest
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[digest]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) Exists(_ context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, ErrBadDigest
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[digest]
	return ok, nil
}
