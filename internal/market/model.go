package market

import (
	"errors"
	"time"
)

const (
	// StatusOpen accepts new orders and matches.
	StatusOpen = "OPEN"
	// StatusClosed stops order flow; set when close_time passes.
	StatusClosed = "CLOSED"
	// StatusResolved means the outcome is known but not yet paid out.
	StatusResolved = "RESOLVED"
	// StatusSettled means payouts have completed.
	StatusSettled = "SETTLED"
)

var (
	// ErrNotFound indicates the market does not exist.
	ErrNotFound = errors.New("market not found")

	// ErrNotOpen rejects new orders and matches once a market left OPEN.
	ErrNotOpen = errors.New("market not open")
)

// Market couples a question with its trading tokens: BaseToken is the
// currency orders are priced in, ShareToken the outcome share being traded.
// WalletID designates the market wallet funding onboarding grants and
// initial liquidity.
type Market struct {
	ID         string
	Title      string
	Status     string
	CloseTime  time.Time
	BaseToken  string
	ShareToken string
	WalletID   string
	CreatedAt  time.Time
}

// Open reports whether the market still accepts orders and matches.
func (m Market) Open() bool { return m.Status == StatusOpen }
