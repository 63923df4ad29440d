package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)

	// OpenCounterparties returns resting open orders on the given side of the
	// market in price-time priority: most favorable price first (lowest for
	// SELL, highest for BUY), ties broken by earlier creation.
	OpenCounterparties(ctx context.Context, marketID string, side Side) ([]Order, error)

	// Terminate conditionally moves an open order to a terminal status. When
	// the order already left the open states the call is a no-op and applied
	// is false; the current row is returned either way.
	Terminate(ctx context.Context, id, to string) (o Order, applied bool, err error)

	// DueForExpiry returns open orders whose valid_until has passed, oldest
	// deadline first, capped at limit.
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]Order, error)
}

// PostgresRepository stores orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id, user_id, market_id, side, share_amount, filled, limit_price::text, status, valid_until, created_at, updated_at`

const insertOrderSQL = `INSERT INTO orders (id, user_id, market_id, side, share_amount, filled, limit_price, status, valid_until, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func orderInsertArgs(o Order) ([]any, error) {
	orderID, err := uuid.Parse(o.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(o.UserID)
	if err != nil {
		return nil, err
	}
	marketID, err := uuid.Parse(o.MarketID)
	if err != nil {
		return nil, err
	}
	return []any{orderID, userID, marketID, string(o.Side), o.ShareAmount, o.Filled, o.LimitPrice.String(),
		o.Status, o.ValidUntil.UTC(), o.CreatedAt.UTC(), o.UpdatedAt.UTC()}, nil
}

// Create inserts an order record.
func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	args, err := orderInsertArgs(o)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, insertOrderSQL, args...)
	return err
}

// Get fetches an order by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return Order{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return ScanOrder(row)
}

// OpenCounterparties returns the resting side of the book in price-time order.
func (r *PostgresRepository) OpenCounterparties(ctx context.Context, marketID string, side Side) ([]Order, error) {
	mid, err := uuid.Parse(marketID)
	if err != nil {
		return nil, err
	}
	priceOrder := "limit_price ASC"
	if side == SideBuy {
		priceOrder = "limit_price DESC"
	}
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
        WHERE market_id = $1 AND side = $2 AND status IN ($3, $4)
        ORDER BY `+priceOrder+`, created_at ASC`,
		mid, string(side), StatusOpen, StatusPartial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// Terminate applies a conditional terminal transition.
func (r *PostgresRepository) Terminate(ctx context.Context, id, to string) (Order, bool, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return Order{}, false, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
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
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, to, now, orderID); err != nil {
		return Order{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	o.Status = to
	o.UpdatedAt = now
	return o, true, nil
}

// DueForExpiry lists open orders past their deadline.
func (r *PostgresRepository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
        WHERE status IN ($1, $2) AND valid_until < $3
        ORDER BY valid_until ASC LIMIT $4`,
		StatusOpen, StatusPartial, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// --- transaction-scoped operations used by the matching engine ---

// GetForUpdateTx reads an order under a FOR UPDATE lock.
func GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return Order{}, err
	}
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	return ScanOrder(row)
}

// ApplyFillTx adds qty to the order's fill and derives the resulting status.
// The caller holds the row lock and has validated qty against Remaining().
func ApplyFillTx(ctx context.Context, tx pgx.Tx, o Order, qty int64) (Order, error) {
	o.Filled += qty
	o.Status = StatusFor(o.Filled, o.ShareAmount)
	o.UpdatedAt = time.Now().UTC()
	_, err := tx.Exec(ctx, `UPDATE orders SET filled = $1, status = $2, updated_at = $3 WHERE id = $4`,
		o.Filled, o.Status, o.UpdatedAt, o.ID)
	return o, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanOrder decodes one order row.
func ScanOrder(row rowScanner) (Order, error) {
	var o Order
	var id, userID, marketID uuid.UUID
	var side, priceStr string
	var validUntil, createdAt, updatedAt time.Time
	err := row.Scan(&id, &userID, &marketID, &side, &o.ShareAmount, &o.Filled, &priceStr, &o.Status, &validUntil, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.ID = id.String()
	o.UserID = userID.String()
	o.MarketID = marketID.String()
	o.Side = Side(side)
	o.LimitPrice, err = decimal.NewFromString(priceStr)
	if err != nil {
		return Order{}, err
	}
	o.ValidUntil = validUntil.UTC()
	o.CreatedAt = createdAt.UTC()
	o.UpdatedAt = updatedAt.UTC()
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
