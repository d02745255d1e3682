package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps records in process memory. Contents are lost on exit.
type MemoryBackend struct {
	mu      sync.RWMutex
	docs    map[string][]byte
	ensured bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (b *MemoryBackend) Ensure(ctx context.Context) error {
	b.mu.Lock()
	b.ensured = true
	b.mu.Unlock()
	return nil
}

// Ensured reports whether Ensure has been called.
func (b *MemoryBackend) Ensured() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ensured
}

func (b *MemoryBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	raw, ok := b.docs[id]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(raw), true, nil
}

func (b *MemoryBackend) Put(ctx context.Context, id string, raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs[id] = slices.Clone(raw)
	return nil
}

// List returns ids sorted by name.
func (b *MemoryBackend) List(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.docs))
	for id := range b.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
