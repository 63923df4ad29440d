package matching

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/order"
	"github.com/augury-markets/augury/internal/wallet"
)

// MemoryStore executes crossings against the in-memory repositories. A mutex
// serializes crossings; balances are pre-checked so the sequential ledger
// calls below never fail halfway.
type MemoryStore struct {
	mu          sync.Mutex
	orders      *order.MemoryRepository
	wallets     wallet.Repository
	ledger      *ledger.Memory
	feeRate     decimal.Decimal
	feeWalletID string
}

// NewMemoryStore builds a crossing store over in-memory state.
func NewMemoryStore(orders *order.MemoryRepository, wallets wallet.Repository, led *ledger.Memory,
	feeRate decimal.Decimal, feeWalletID string) *MemoryStore {
	return &MemoryStore{orders: orders, wallets: wallets, ledger: led, feeRate: feeRate, feeWalletID: feeWalletID}
}

// Crossing applies one fill between taker and maker.
func (s *MemoryStore) Crossing(ctx context.Context, m market.Market, takerID, makerID string) (CrossingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taker, err := s.orders.Get(ctx, takerID)
	if err != nil {
		return CrossingResult{}, err
	}
	maker, err := s.orders.Get(ctx, makerID)
	if err != nil {
		return CrossingResult{}, err
	}

	cross, err := validateCrossing(taker, maker)
	if err != nil {
		return CrossingResult{}, err
	}

	buyerWallet, err := s.wallets.ByOwnerRole(ctx, cross.buy.UserID, wallet.RoleAvailable)
	if err != nil {
		return CrossingResult{}, fmt.Errorf("%w: no available wallet for user %s", ledger.ErrWalletNotFound, cross.buy.UserID)
	}
	sellerWallet, err := s.wallets.ByOwnerRole(ctx, cross.sell.UserID, wallet.RoleAvailable)
	if err != nil {
		return CrossingResult{}, fmt.Errorf("%w: no available wallet for user %s", ledger.ErrWalletNotFound, cross.sell.UserID)
	}

	buyerBase, err := s.ledger.Balance(ctx, buyerWallet.ID, m.BaseToken)
	if err != nil || buyerBase.Reserved < cross.cost {
		return CrossingResult{}, ledger.ErrInsufficientReserved
	}
	sellerShares, err := s.ledger.Balance(ctx, sellerWallet.ID, m.ShareToken)
	if err != nil || sellerShares.Reserved < cross.qty {
		return CrossingResult{}, ledger.ErrInsufficientReserved
	}

	memo := fmt.Sprintf("trade %s x %s", takerID, makerID)
	baseLeg, err := s.ledger.Execute(ctx, ledger.ExecuteInput{
		FromWalletID:    buyerWallet.ID,
		ToWalletID:      sellerWallet.ID,
		Token:           m.BaseToken,
		Amount:          cross.cost,
		Type:            ledger.TransferSettlement,
		FeeRate:         s.feeRate,
		FeeWalletID:     s.feeWalletID,
		Memo:            memo,
		ReserveRequired: true,
	})
	if err != nil {
		return CrossingResult{}, err
	}
	shareLeg, err := s.ledger.Execute(ctx, ledger.ExecuteInput{
		FromWalletID:    sellerWallet.ID,
		ToWalletID:      buyerWallet.ID,
		Token:           m.ShareToken,
		Amount:          cross.qty,
		Type:            ledger.TransferSettlement,
		Memo:            memo,
		ReserveRequired: true,
	})
	if err != nil {
		return CrossingResult{}, err
	}

	if slack := buyerSlack(cross.buy, cross.qty, cross.cost); slack > 0 {
		if _, err := s.ledger.Release(ctx, buyerWallet.ID, m.BaseToken, slack); err != nil {
			return CrossingResult{}, err
		}
	}

	taker, applied, err := s.orders.ApplyFill(ctx, takerID, cross.qty)
	if err != nil || !applied {
		return CrossingResult{}, fmt.Errorf("apply taker fill: applied=%v err=%v", applied, err)
	}
	maker, applied, err = s.orders.ApplyFill(ctx, makerID, cross.qty)
	if err != nil || !applied {
		return CrossingResult{}, fmt.Errorf("apply maker fill: applied=%v err=%v", applied, err)
	}

	return CrossingResult{
		Taker:     taker,
		Maker:     maker,
		Quantity:  cross.qty,
		Price:     cross.price,
		Cost:      cross.cost,
		Transfers: []ledger.Transfer{baseLeg, shareLeg},
	}, nil
}
