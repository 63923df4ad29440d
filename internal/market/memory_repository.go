package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Market
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Market)}
}

func (r *memoryRepository) Create(_ context.Context, m Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[m.ID]; exists {
		return errors.New("market exists")
	}
	r.storage[m.ID] = m
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.storage[id]
	if !ok {
		return Market{}, ErrNotFound
	}
	return m, nil
}

func (r *memoryRepository) CloseDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed int64
	for id, m := range r.storage {
		if m.Status == StatusOpen && m.CloseTime.Before(now) {
			m.Status = StatusClosed
			r.storage[id] = m
			closed++
		}
	}
	return closed, nil
}
