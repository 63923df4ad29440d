package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a limit order.
type Side string

const (
	// SideBuy bids for outcome shares priced in the market's base token.
	SideBuy Side = "BUY"
	// SideSell offers outcome shares.
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

const (
	// StatusOpen is the resting state of an unfilled order.
	StatusOpen = "OPEN"
	// StatusPartial is a display refinement of OPEN with filled > 0.
	StatusPartial = "PARTIALLY_FILLED"
	// StatusFilled means filled == share_amount. Terminal.
	StatusFilled = "FILLED"
	// StatusExpired means valid_until passed while still open. Terminal.
	StatusExpired = "EXPIRED"
	// StatusCancelled means the owner or an admin cancelled it. Terminal.
	StatusCancelled = "CANCELLED"
	// StatusClosed is the terminal state applied by resolution flows.
	StatusClosed = "CLOSED"
)

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrNotOpen marks a terminal-state race. Callers treat it as a silent
	// no-op, never as a failure surfaced to the user.
	ErrNotOpen = errors.New("order not open")
)

// Order is a limit order against one market. Filled accumulates matched
// shares; the reservation backing the order always corresponds to
// Remaining() through ReserveAmount.
type Order struct {
	ID          string
	UserID      string
	MarketID    string
	Side        Side
	ShareAmount int64
	Filled      int64
	LimitPrice  decimal.Decimal
	Status      string
	ValidUntil  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining returns the unmatched share count.
func (o Order) Remaining() int64 { return o.ShareAmount - o.Filled }

// IsOpen reports whether the order can still fill, expire or be cancelled.
func (o Order) IsOpen() bool {
	return o.Status == StatusOpen || o.Status == StatusPartial
}

// StatusFor derives the non-terminal status from fill progress.
func StatusFor(filled, shareAmount int64) string {
	switch {
	case filled >= shareAmount:
		return StatusFilled
	case filled > 0:
		return StatusPartial
	default:
		return StatusOpen
	}
}

// ReserveAmount sizes the reservation backing remaining shares: a BUY locks
// ceil(remaining x limit) base-token units so fractional prices never
// under-reserve, a SELL locks the shares themselves.
func ReserveAmount(side Side, remaining int64, limit decimal.Decimal) int64 {
	if remaining <= 0 {
		return 0
	}
	if side == SideSell {
		return remaining
	}
	return decimal.NewFromInt(remaining).Mul(limit).Ceil().IntPart()
}

// TradeCost is the base-token value of qty shares at the trade price, rounded
// up to whole token units. Rounding up keeps the settle amount within the
// buyer's ceiling-sized reservation.
func TradeCost(qty int64, price decimal.Decimal) int64 {
	return decimal.NewFromInt(qty).Mul(price).Ceil().IntPart()
}

// Crosses reports whether a buy limit meets a sell limit.
func Crosses(buyLimit, sellLimit decimal.Decimal) bool {
	return buyLimit.GreaterThanOrEqual(sellLimit)
}
