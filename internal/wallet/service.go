package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/augury-markets/augury/internal/ledger"
)

// Grant configures the onboarding transfer newly provisioned users receive
// from a platform wallet. A zero value disables grants.
type Grant struct {
	FromWalletID string
	Token        string
	Amount       int64
}

// Service exposes wallet provisioning and balance queries backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	grant  Grant
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, led ledger.Ledger, grant Grant, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: led, grant: grant, logger: logger}
}

// Onboard provisions the user's available wallet, creating the base token
// balance and executing the configured onboarding grant. Calling it again for
// the same user returns the existing wallet.
func (s *Service) Onboard(ctx context.Context, userID string) (Wallet, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return Wallet{}, err
	}

	if existing, err := s.repo.ByOwnerRole(ctx, userID, RoleAvailable); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Role:      RoleAvailable,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}

	if s.grant.Token != "" {
		if err := s.ledger.EnsureBalance(ctx, w.ID, s.grant.Token); err != nil {
			return Wallet{}, err
		}
	}

	if s.grant.FromWalletID != "" && s.grant.Amount > 0 {
		_, err := s.ledger.Execute(ctx, ledger.ExecuteInput{
			FromWalletID: s.grant.FromWalletID,
			ToWalletID:   w.ID,
			Token:        s.grant.Token,
			Amount:       s.grant.Amount,
			Type:         ledger.TransferOnboarding,
			Memo:         fmt.Sprintf("onboarding grant for user %s", userID),
		})
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrWalletNotFound),
			errors.Is(err, ledger.ErrBalanceNotFound),
			errors.Is(err, ledger.ErrInsufficientBalance):
			// Grant funding is best effort; the wallet is still usable.
			s.logger.Warn("onboarding grant skipped", "user_id", userID, "error", err)
		default:
			return Wallet{}, err
		}
	}

	return w, nil
}

// CreateInput captures data required to create a custodial wallet.
type CreateInput struct {
	OwnerID  string
	Role     string
	ParentID string
}

// Create provisions a deposit or reserved wallet, optionally parented to an
// existing wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}
	if !validRole(input.Role) {
		return Wallet{}, fmt.Errorf("invalid wallet role %q", input.Role)
	}
	if input.ParentID != "" {
		if _, err := s.repo.Get(ctx, input.ParentID); err != nil {
			return Wallet{}, err
		}
	}

	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Role:      input.Role,
		ParentID:  input.ParentID,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// Balances returns point-in-time token balance snapshots for the wallet.
func (s *Service) Balances(ctx context.Context, id string) ([]ledger.TokenBalance, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.Balances(ctx, id)
}

// Remove soft-deletes the wallet.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}
