package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists token balances and transfers in PostgreSQL. Every
// mutation runs inside a transaction holding a FOR UPDATE lock on the balance
// rows it touches, so concurrent operations on the same balance are
// linearized by the store.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureBalance lazily creates the zero balance row for wallet x token.
func (l *PostgresLedger) EnsureBalance(ctx context.Context, walletID, token string) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := EnsureBalanceTx(ctx, tx, walletID, token); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Balance returns a point-in-time snapshot of one balance.
func (l *PostgresLedger) Balance(ctx context.Context, walletID, token string) (TokenBalance, error) {
	row := l.db.QueryRow(ctx, `SELECT wallet_id, token, quantity, reserved_quantity, version, updated_at
        FROM token_balances WHERE wallet_id = $1 AND token = $2`, walletID, token)
	return scanBalance(row)
}

// Balances returns snapshots of every token the wallet holds.
func (l *PostgresLedger) Balances(ctx context.Context, walletID string) ([]TokenBalance, error) {
	rows, err := l.db.Query(ctx, `SELECT wallet_id, token, quantity, reserved_quantity, version, updated_at
        FROM token_balances WHERE wallet_id = $1 ORDER BY token`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []TokenBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Reserve locks amount of token against the wallet balance.
func (l *PostgresLedger) Reserve(ctx context.Context, walletID, token string, amount int64) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := ReserveTx(ctx, tx, walletID, token, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Release unlocks up to amount, clamped to what is reserved.
func (l *PostgresLedger) Release(ctx context.Context, walletID, token string, amount int64) (int64, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	released, err := ReleaseTx(ctx, tx, walletID, token, amount)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return released, nil
}

// Execute moves amount between two wallets in one transaction and records the
// executed Transfer. The debit goes through the settle path when the input
// requires a reservation, otherwise it only touches unreserved quantity.
func (l *PostgresLedger) Execute(ctx context.Context, input ExecuteInput) (Transfer, error) {
	if input.Amount <= 0 {
		return Transfer{}, fmt.Errorf("amount must be positive")
	}
	if input.FromWalletID == input.ToWalletID {
		return Transfer{}, fmt.Errorf("transfer requires two distinct wallets")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	transfer, err := ExecuteTx(ctx, tx, input)
	if err != nil {
		return Transfer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// --- transaction-scoped operations ---
//
// The matching engine composes these inside its own crossing transaction so a
// fill touches both orders, both wallets and the transfer records atomically.

// EnsureBalanceTx creates the zero balance row if it does not exist. Fails
// with ErrWalletNotFound when the wallet row is missing.
func EnsureBalanceTx(ctx context.Context, tx pgx.Tx, walletID, token string) error {
	if err := walletExists(ctx, tx, walletID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO token_balances (wallet_id, token, quantity, reserved_quantity, version, updated_at)
        VALUES ($1, $2, 0, 0, 0, $3) ON CONFLICT (wallet_id, token) DO NOTHING`, walletID, token, time.Now().UTC())
	return err
}

// BalanceForUpdateTx reads the balance row under a FOR UPDATE lock.
func BalanceForUpdateTx(ctx context.Context, tx pgx.Tx, walletID, token string) (TokenBalance, error) {
	row := tx.QueryRow(ctx, `SELECT wallet_id, token, quantity, reserved_quantity, version, updated_at
        FROM token_balances WHERE wallet_id = $1 AND token = $2 FOR UPDATE`, walletID, token)
	return scanBalance(row)
}

// ReserveTx locks amount against the balance inside the caller's transaction.
func ReserveTx(ctx context.Context, tx pgx.Tx, walletID, token string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("reserve amount must not be negative")
	}
	if err := EnsureBalanceTx(ctx, tx, walletID, token); err != nil {
		return err
	}
	bal, err := BalanceForUpdateTx(ctx, tx, walletID, token)
	if err != nil {
		return err
	}
	if bal.Reserved+amount > bal.Quantity {
		return ErrInsufficientBalance
	}
	return writeBalance(ctx, tx, walletID, token, bal.Quantity, bal.Reserved+amount)
}

// ReleaseTx unlocks up to amount, clamped to the reserved quantity, and
// returns how much was actually released.
func ReleaseTx(ctx context.Context, tx pgx.Tx, walletID, token string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("release amount must not be negative")
	}
	bal, err := BalanceForUpdateTx(ctx, tx, walletID, token)
	if err != nil {
		return 0, err
	}
	released := amount
	if released > bal.Reserved {
		released = bal.Reserved
	}
	if err := writeBalance(ctx, tx, walletID, token, bal.Quantity, bal.Reserved-released); err != nil {
		return 0, err
	}
	return released, nil
}

// SettleDebitTx converts a reservation into a spend: both quantity and
// reserved decrease by amount. Fails with ErrInsufficientReserved when the
// reservation does not cover the amount.
func SettleDebitTx(ctx context.Context, tx pgx.Tx, walletID, token string, amount int64) error {
	bal, err := BalanceForUpdateTx(ctx, tx, walletID, token)
	if err != nil {
		return err
	}
	if bal.Reserved < amount {
		return ErrInsufficientReserved
	}
	return writeBalance(ctx, tx, walletID, token, bal.Quantity-amount, bal.Reserved-amount)
}

// DebitTx removes unreserved quantity directly, preserving the reservation
// bound: quantity - amount must still cover what is reserved.
func DebitTx(ctx context.Context, tx pgx.Tx, walletID, token string, amount int64) error {
	bal, err := BalanceForUpdateTx(ctx, tx, walletID, token)
	if err != nil {
		return err
	}
	if bal.Quantity-bal.Reserved < amount {
		return ErrInsufficientBalance
	}
	return writeBalance(ctx, tx, walletID, token, bal.Quantity-amount, bal.Reserved)
}

// CreditTx increases quantity only.
func CreditTx(ctx context.Context, tx pgx.Tx, walletID, token string, amount int64) error {
	if err := EnsureBalanceTx(ctx, tx, walletID, token); err != nil {
		return err
	}
	bal, err := BalanceForUpdateTx(ctx, tx, walletID, token)
	if err != nil {
		return err
	}
	return writeBalance(ctx, tx, walletID, token, bal.Quantity+amount, bal.Reserved)
}

// InsertTransferTx records an executed transfer row.
func InsertTransferTx(ctx context.Context, tx pgx.Tx, transfer Transfer) error {
	_, err := tx.Exec(ctx, `INSERT INTO transfers (id, from_wallet_id, to_wallet_id, token, amount, fee, kind, status, memo, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		transfer.ID, transfer.FromWalletID, transfer.ToWalletID, transfer.Token,
		transfer.Amount, transfer.Fee, transfer.Type, transfer.Status, transfer.Memo, transfer.CreatedAt)
	return err
}

// ExecuteTx applies a transfer inside the caller's transaction.
func ExecuteTx(ctx context.Context, tx pgx.Tx, input ExecuteInput) (Transfer, error) {
	fee := int64(0)
	if input.FeeWalletID != "" {
		fee = FeeFor(input.Amount, input.FeeRate)
	}

	if input.ReserveRequired {
		if err := SettleDebitTx(ctx, tx, input.FromWalletID, input.Token, input.Amount); err != nil {
			return Transfer{}, err
		}
	} else {
		if err := DebitTx(ctx, tx, input.FromWalletID, input.Token, input.Amount); err != nil {
			return Transfer{}, err
		}
	}
	if err := CreditTx(ctx, tx, input.ToWalletID, input.Token, input.Amount-fee); err != nil {
		return Transfer{}, err
	}
	if fee > 0 {
		if err := CreditTx(ctx, tx, input.FeeWalletID, input.Token, fee); err != nil {
			return Transfer{}, err
		}
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
	if err := InsertTransferTx(ctx, tx, transfer); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

func walletExists(ctx context.Context, tx pgx.Tx, walletID string) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE id = $1 AND status = 'active'`, walletID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
	}
	return err
}

func writeBalance(ctx context.Context, tx pgx.Tx, walletID, token string, quantity, reserved int64) error {
	_, err := tx.Exec(ctx, `UPDATE token_balances
        SET quantity = $1, reserved_quantity = $2, version = version + 1, updated_at = $3
        WHERE wallet_id = $4 AND token = $5`, quantity, reserved, time.Now().UTC(), walletID, token)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (TokenBalance, error) {
	var b TokenBalance
	var walletID uuid.UUID
	var updatedAt time.Time
	if err := row.Scan(&walletID, &b.Token, &b.Quantity, &b.Reserved, &b.Version, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenBalance{}, ErrBalanceNotFound
		}
		return TokenBalance{}, err
	}
	b.WalletID = walletID.String()
	b.UpdatedAt = updatedAt.UTC()
	return b, nil
}
