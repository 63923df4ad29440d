package market

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists markets.
type Repository interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	// CloseDue transitions every OPEN market whose close time has passed to
	// CLOSED and reports how many were closed. Safe to re-run.
	CloseDue(ctx context.Context, now time.Time) (int64, error)
}

// PostgresRepository stores markets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a market record.
func (r *PostgresRepository) Create(ctx context.Context, m Market) error {
	marketID, err := uuid.Parse(m.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(m.WalletID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO markets (id, title, status, close_time, base_token, share_token, wallet_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		marketID, m.Title, m.Status, m.CloseTime.UTC(), m.BaseToken, m.ShareToken, walletID, m.CreatedAt.UTC())
	return err
}

// Get fetches a market by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Market, error) {
	marketID, err := uuid.Parse(id)
	if err != nil {
		return Market{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, title, status, close_time, base_token, share_token, wallet_id, created_at
        FROM markets WHERE id = $1`, marketID)

	var m Market
	var mid, walletID uuid.UUID
	var closeTime, createdAt time.Time
	if err := row.Scan(&mid, &m.Title, &m.Status, &closeTime, &m.BaseToken, &m.ShareToken, &walletID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Market{}, ErrNotFound
		}
		return Market{}, err
	}
	m.ID = mid.String()
	m.WalletID = walletID.String()
	m.CloseTime = closeTime.UTC()
	m.CreatedAt = createdAt.UTC()
	return m, nil
}

// CloseDue is a set-based pass: the conditional WHERE keeps it idempotent.
func (r *PostgresRepository) CloseDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE markets SET status = $1 WHERE status = $2 AND close_time < $3`,
		StatusClosed, StatusOpen, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
