package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory order store for tests. The matching
// engine's in-memory store drives fills through ApplyFill.
type MemoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Order
}

// NewMemoryRepository constructs an in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{storage: make(map[string]Order)}
}

// Create inserts an order.
func (r *MemoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[o.ID]; exists {
		return errors.New("order exists")
	}
	r.storage[o.ID] = o
	return nil
}

// Get fetches an order by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.storage[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// OpenCounterparties returns resting open orders in price-time priority.
func (r *MemoryRepository) OpenCounterparties(_ context.Context, marketID string, side Side) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var orders []Order
	for _, o := range r.storage {
		if o.MarketID == marketID && o.Side == side && o.IsOpen() {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.LimitPrice.Equal(b.LimitPrice) {
			if side == SideBuy {
				return a.LimitPrice.GreaterThan(b.LimitPrice)
			}
			return a.LimitPrice.LessThan(b.LimitPrice)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return orders, nil
}

// Terminate applies a conditional terminal transition.
func (r *MemoryRepository) Terminate(_ context.Context, id, to string) (Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.storage[id]
	if !ok {
		return Order{}, false, ErrNotFound
	}
	if !o.IsOpen() {
		return o, false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	r.storage[id] = o
	return o, true, nil
}

// DueForExpiry lists open orders past their deadline, oldest deadline first.
func (r *MemoryRepository) DueForExpiry(_ context.Context, now time.Time, limit int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []Order
	for _, o := range r.storage {
		if o.IsOpen() && o.ValidUntil.Before(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ValidUntil.Before(due[j].ValidUntil) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ApplyFill conditionally adds qty to the order's fill: the order must still
// be open and qty must not exceed the remaining shares.
func (r *MemoryRepository) ApplyFill(_ context.Context, id string, qty int64) (Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.storage[id]
	if !ok {
		return Order{}, false, ErrNotFound
	}
	if !o.IsOpen() || qty <= 0 || qty > o.Remaining() {
		return o, false, nil
	}
	o.Filled += qty
	o.Status = StatusFor(o.Filled, o.ShareAmount)
	o.UpdatedAt = time.Now().UTC()
	r.storage[id] = o
	return o, true, nil
}
