package matching

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/order"
)

// ErrNoCross indicates the two orders' limits do not meet. The candidate scan
// stops there: candidates are sorted most favorable first.
var ErrNoCross = errors.New("orders do not cross")

// CrossingResult reports one applied fill.
type CrossingResult struct {
	Taker     order.Order
	Maker     order.Order
	Quantity  int64
	Price     decimal.Decimal
	Cost      int64
	Transfers []ledger.Transfer
}

// Store executes one crossing as a single atomic unit: both order rows, both
// users' balances and the settlement transfers commit or abort together. A
// crossing against an order that already reached a terminal state fails with
// order.ErrNotOpen and changes nothing.
type Store interface {
	Crossing(ctx context.Context, m market.Market, takerID, makerID string) (CrossingResult, error)
}
