package wallet

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[w.ID]; exists {
		return errors.New("wallet exists")
	}
	r.storage[w.ID] = w
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) ByOwnerRole(_ context.Context, ownerID, role string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.storage {
		if w.OwnerID == ownerID && w.Role == role && w.Status == StatusActive {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[id]
	if !ok || w.Status != StatusActive {
		return ErrNotFound
	}
	w.Status = StatusDeleted
	r.storage[id] = w
	return nil
}
