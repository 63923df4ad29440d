package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	// ByOwnerRole returns the active wallet of the given role for a user.
	ByOwnerRole(ctx context.Context, ownerID, role string) (Wallet, error)
	SoftDelete(ctx context.Context, id string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return err
	}
	var parentID *uuid.UUID
	if w.ParentID != "" {
		parsed, err := uuid.Parse(w.ParentID)
		if err != nil {
			return err
		}
		parentID = &parsed
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, role, parent_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, walletID, ownerID, w.Role, parentID, w.Status, w.CreatedAt.UTC())
	return err
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, role, parent_id, status, created_at
        FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// ByOwnerRole returns the active wallet of the given role owned by the user.
func (r *PostgresRepository) ByOwnerRole(ctx context.Context, ownerID, role string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, role, parent_id, status, created_at
        FROM wallets WHERE owner_id = $1 AND role = $2 AND status = 'active'`, owner, role)
	return scanWallet(row)
}

// SoftDelete marks the wallet deleted; balances and transfers are retained.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET status = 'deleted' WHERE id = $1 AND status = 'active'`, walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var id, ownerID uuid.UUID
	var parentID *uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&id, &ownerID, &w.Role, &parentID, &w.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	if parentID != nil {
		w.ParentID = parentID.String()
	}
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
