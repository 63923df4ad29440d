package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryBalance struct {
	quantity int64
	reserved int64
	version  int64
	updated  time.Time
}

// Memory is a concurrency-safe in-memory ledger used by unit tests and the
// in-memory matching store. Wallets are registered explicitly so missing
// wallets surface the same ErrWalletNotFound the Postgres ledger reports.
type Memory struct {
	mu        sync.Mutex
	wallets   map[string]bool
	balances  map[string]map[string]*memoryBalance
	transfers []Transfer
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		wallets:  make(map[string]bool),
		balances: make(map[string]map[string]*memoryBalance),
	}
}

// RegisterWallet makes the wallet known to the ledger.
func (l *Memory) RegisterWallet(walletID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[walletID] = true
}

// EnsureBalance lazily creates a zero balance for wallet x token, registering
// the wallet on first touch. This is the onboarding hook: operations other
// than EnsureBalance still fail with ErrWalletNotFound for unknown wallets.
func (l *Memory) EnsureBalance(_ context.Context, walletID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[walletID] = true
	l.ensureLocked(walletID, token)
	return nil
}

// Balance returns a snapshot of one balance.
func (l *Memory) Balance(_ context.Context, walletID, token string) (TokenBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[walletID][token]
	if !ok {
		return TokenBalance{}, ErrBalanceNotFound
	}
	return snapshot(walletID, token, bal), nil
}

// Balances returns snapshots of every token the wallet holds, ordered by token.
func (l *Memory) Balances(_ context.Context, walletID string) ([]TokenBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byToken := l.balances[walletID]
	tokens := make([]string, 0, len(byToken))
	for token := range byToken {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	out := make([]TokenBalance, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, snapshot(walletID, token, byToken[token]))
	}
	return out, nil
}

// Reserve locks amount against the balance.
func (l *Memory) Reserve(_ context.Context, walletID, token string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("reserve amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.wallets[walletID] {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
	}
	bal := l.ensureLocked(walletID, token)
	if bal.reserved+amount > bal.quantity {
		return ErrInsufficientBalance
	}
	bal.reserved += amount
	bump(bal)
	return nil
}

// Release unlocks up to amount, clamped to the reserved quantity.
func (l *Memory) Release(_ context.Context, walletID, token string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("release amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[walletID][token]
	if !ok {
		return 0, ErrBalanceNotFound
	}
	released := amount
	if released > bal.reserved {
		released = bal.reserved
	}
	bal.reserved -= released
	bump(bal)
	return released, nil
}

// Execute moves amount between two wallets and records the transfer.
func (l *Memory) Execute(_ context.Context, input ExecuteInput) (Transfer, error) {
	if input.Amount <= 0 {
		return Transfer{}, fmt.Errorf("amount must be positive")
	}
	if input.FromWalletID == input.ToWalletID {
		return Transfer{}, fmt.Errorf("transfer requires two distinct wallets")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executeLocked(input)
}

func (l *Memory) executeLocked(input ExecuteInput) (Transfer, error) {
	for _, walletID := range []string{input.FromWalletID, input.ToWalletID} {
		if !l.wallets[walletID] {
			return Transfer{}, fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
		}
	}

	fee := int64(0)
	if input.FeeWalletID != "" {
		if !l.wallets[input.FeeWalletID] {
			return Transfer{}, fmt.Errorf("%w: %s", ErrWalletNotFound, input.FeeWalletID)
		}
		fee = FeeFor(input.Amount, input.FeeRate)
	}

	from := l.ensureLocked(input.FromWalletID, input.Token)
	if input.ReserveRequired {
		if from.reserved < input.Amount {
			return Transfer{}, ErrInsufficientReserved
		}
		from.quantity -= input.Amount
		from.reserved -= input.Amount
	} else {
		if from.quantity-from.reserved < input.Amount {
			return Transfer{}, ErrInsufficientBalance
		}
		from.quantity -= input.Amount
	}
	bump(from)

	to := l.ensureLocked(input.ToWalletID, input.Token)
	to.quantity += input.Amount - fee
	bump(to)

	if fee > 0 {
		feeBal := l.ensureLocked(input.FeeWalletID, input.Token)
		feeBal.quantity += fee
		bump(feeBal)
	}

	transfer := Transfer{
		ID:           uuid.NewString(),
		FromWalletID: input.FromWalletID,
		ToWalletID:   input.ToWalletID,
		Token:        input.Token,
		Amount:       input.Amount,
		Fee:          fee,
		Type:         input.Type,
		Status:       TransferExecuted,
		Memo:         input.Memo,
		CreatedAt:    time.Now().UTC(),
	}
	l.transfers = append(l.transfers, transfer)
	return transfer, nil
}

// Transfers returns a copy of every recorded transfer, oldest first.
func (l *Memory) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}

func (l *Memory) ensureLocked(walletID, token string) *memoryBalance {
	byToken, ok := l.balances[walletID]
	if !ok {
		byToken = make(map[string]*memoryBalance)
		l.balances[walletID] = byToken
	}
	bal, ok := byToken[token]
	if !ok {
		bal = &memoryBalance{updated: time.Now().UTC()}
		byToken[token] = bal
	}
	return bal
}

func bump(bal *memoryBalance) {
	bal.version++
	bal.updated = time.Now().UTC()
}

func snapshot(walletID, token string, bal *memoryBalance) TokenBalance {
	return TokenBalance{
		WalletID:  walletID,
		Token:     token,
		Quantity:  bal.quantity,
		Reserved:  bal.reserved,
		Version:   bal.version,
		UpdatedAt: bal.updated,
	}
}
