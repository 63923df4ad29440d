package order

import (
	"context"

	"github.com/augury-markets/augury/internal/ledger"
)

// MemoryStore pairs the in-memory repository with the in-memory ledger. The
// two mutate sequentially instead of transactionally; the create path
// compensates on failure so the Store contract holds for tests.
type MemoryStore struct {
	orders *MemoryRepository
	ledger *ledger.Memory
}

// NewMemoryStore builds an in-memory lifecycle store.
func NewMemoryStore(orders *MemoryRepository, led *ledger.Memory) *MemoryStore {
	return &MemoryStore{orders: orders, ledger: led}
}

// CreateReserving reserves the backing funds, then inserts the order,
// releasing the reservation if the insert fails.
func (s *MemoryStore) CreateReserving(ctx context.Context, o Order, walletID, token string, amount int64) error {
	if err := s.ledger.Reserve(ctx, walletID, token, amount); err != nil {
		return err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		_, _ = s.ledger.Release(ctx, walletID, token, amount)
		return err
	}
	return nil
}

// TerminateReleasing applies the conditional terminal transition and, when it
// wins, releases the reservation behind the remaining shares. A missing
// balance leaves the order terminal and surfaces ledger.ErrBalanceNotFound.
func (s *MemoryStore) TerminateReleasing(ctx context.Context, id, to, walletID, token string) (Order, bool, error) {
	o, applied, err := s.orders.Terminate(ctx, id, to)
	if err != nil || !applied {
		return o, applied, err
	}
	if amount := ReserveAmount(o.Side, o.Remaining(), o.LimitPrice); amount > 0 {
		if _, err := s.ledger.Release(ctx, walletID, token, amount); err != nil {
			return o, true, err
		}
	}
	return o, true, nil
}
