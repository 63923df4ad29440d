package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/augury-markets/augury/internal/ledger"
)

// Store binds the order row and its backing reservation into single
// transactions for the lifecycle transitions that must commit together: a
// crash can never leave a reservation without an order, or a terminal order
// still holding one.
type Store interface {
	// CreateReserving reserves amount of token on the wallet and inserts the
	// order, atomically. Fails with ledger.ErrInsufficientBalance without
	// either taking effect.
	CreateReserving(ctx context.Context, o Order, walletID, token string, amount int64) error

	// TerminateReleasing conditionally moves an open order to the terminal
	// status and releases the reservation behind its remaining shares in the
	// same transaction. A terminal order is a no-op with applied=false. A
	// missing balance does not block the transition: the order commits
	// terminal and the error is ledger.ErrBalanceNotFound for the caller to
	// report.
	TerminateReleasing(ctx context.Context, id, to, walletID, token string) (o Order, applied bool, err error)
}

// PostgresStore executes order lifecycle transitions against PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a lifecycle store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateReserving reserves the backing funds and inserts the order in one
// transaction.
func (s *PostgresStore) CreateReserving(ctx context.Context, o Order, walletID, token string, amount int64) error {
	args, err := orderInsertArgs(o)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := ledger.ReserveTx(ctx, tx, walletID, token, amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertOrderSQL, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TerminateReleasing applies the terminal transition and the release under
// one lock-holding transaction. The release amount is derived from the
// remaining shares of the row as locked, so fills that raced ahead are
// accounted for.
func (s *PostgresStore) TerminateReleasing(ctx context.Context, id, to, walletID, token string) (Order, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	o, err := GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return Order{}, false, err
	}
	if !o.IsOpen() {
		return o, false, tx.Commit(ctx)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, to, now, o.ID); err != nil {
		return Order{}, false, err
	}

	var leak error
	if amount := ReserveAmount(o.Side, o.Remaining(), o.LimitPrice); amount > 0 {
		if _, err := ledger.ReleaseTx(ctx, tx, walletID, token, amount); err != nil {
			if !errors.Is(err, ledger.ErrBalanceNotFound) {
				return Order{}, false, err
			}
			leak = err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	o.Status = to
	o.UpdatedAt = now
	return o, true, leak
}
