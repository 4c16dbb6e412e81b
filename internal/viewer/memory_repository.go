package viewer

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	viewers map[string]Viewer
}

// NewMemoryRepository builds an in-memory viewer store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{viewers: make(map[string]Viewer)}
}

func (r *memoryRepository) Create(_ context.Context, v Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.viewers[v.ExternalID]; exists {
		return ErrExists
	}
	r.viewers[v.ExternalID] = v
	return nil
}

func (r *memoryRepository) FindByExternalID(_ context.Context, externalID string) (Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.viewers[externalID]
	if !ok {
		return Viewer{}, ErrNotFound
	}
	return v, nil
}
