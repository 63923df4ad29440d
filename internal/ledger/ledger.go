package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance occurs when a reservation or a direct debit would
	// exceed the unreserved quantity the wallet owns.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientReserved occurs when a settlement debit exceeds the
	// quantity actually reserved on the balance.
	ErrInsufficientReserved = errors.New("insufficient reserved")

	// ErrWalletNotFound indicates the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrBalanceNotFound indicates the wallet has never touched the token.
	// Callers on onboarding-adjacent paths treat this as skip-and-log.
	ErrBalanceNotFound = errors.New("balance not found")
)

const (
	// TransferSettlement marks a transfer produced by a matched trade.
	TransferSettlement = "settlement"
	// TransferOnboarding marks an unreserved grant made when a user is onboarded.
	TransferOnboarding = "onboarding"
	// TransferWithdrawal marks an explicit user withdrawal.
	TransferWithdrawal = "withdrawal"

	// TransferExecuted is the terminal status of a completed transfer.
	TransferExecuted = "executed"
	// TransferPending is the initial status of a transfer not yet applied.
	TransferPending = "pending"
	// TransferCancelled marks a transfer abandoned before execution.
	TransferCancelled = "cancelled"
)

// TokenBalance is the per wallet x token ledger row. Reserved is the subset of
// Quantity locked against open orders; Version increases on every mutation of
// either field so readers outside a row lock can detect concurrent changes.
type TokenBalance struct {
	WalletID  string
	Token     string
	Quantity  int64
	Reserved  int64
	Version   int64
	UpdatedAt time.Time
}

// Available returns the quantity not locked by reservations.
func (b TokenBalance) Available() int64 { return b.Quantity - b.Reserved }

// Transfer records an atomic token movement between two wallets. Immutable
// once executed.
type Transfer struct {
	ID           string
	FromWalletID string
	ToWalletID   string
	Token        string
	Amount       int64
	Fee          int64
	Type         string
	Status       string
	Memo         string
	CreatedAt    time.Time
}

// ExecuteInput captures a requested transfer between two wallets.
type ExecuteInput struct {
	FromWalletID string
	ToWalletID   string
	Token        string
	Amount       int64
	Type         string
	FeeRate      decimal.Decimal
	FeeWalletID  string
	Memo         string
	// ReserveRequired routes the debit through the settle path: the amount
	// must already be reserved on the sender. When false the debit only
	// touches unreserved quantity (onboarding grants, withdrawals).
	ReserveRequired bool
}

// Ledger is the reservation accountant and settlement service over wallet
// token balances. Implementations must linearize concurrent operations on the
// same balance (row locks in Postgres, a mutex in memory).
type Ledger interface {
	// EnsureBalance lazily creates the zero balance row for wallet x token.
	EnsureBalance(ctx context.Context, walletID, token string) error

	// Balance returns a point-in-time snapshot of one balance.
	Balance(ctx context.Context, walletID, token string) (TokenBalance, error)

	// Balances returns point-in-time snapshots of every token the wallet holds.
	Balances(ctx context.Context, walletID string) ([]TokenBalance, error)

	// Reserve locks amount against the balance. Fails with
	// ErrInsufficientBalance when reserved+amount would exceed quantity.
	Reserve(ctx context.Context, walletID, token string, amount int64) error

	// Release unlocks up to amount, clamped to what is actually reserved, and
	// reports how much was released. Releasing more than is reserved is not
	// an error; the clamp absorbs rounding and race slack.
	Release(ctx context.Context, walletID, token string, amount int64) (int64, error)

	// Execute moves amount of token between two wallets in one transaction,
	// routing any fee to the configured fee wallet, and records the Transfer.
	Execute(ctx context.Context, input ExecuteInput) (Transfer, error)
}

// FeeFor computes the fee withheld from a transferred amount: floor(amount x
// rate), clamped to [0, amount]. Flooring keeps the remainder with the payer
// rather than over-crediting the fee wallet.
func FeeFor(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	fee := rate.Mul(decimal.NewFromInt(amount)).Floor().IntPart()
	if fee > amount {
		return amount
	}
	return fee
}
