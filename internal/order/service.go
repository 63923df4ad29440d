package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/notification"
	"github.com/augury-markets/augury/internal/trigger"
	"github.com/augury-markets/augury/internal/wallet"
)

// Service owns the order lifecycle. Creation reserves funds and inserts the
// order in one store transaction, so the order and its reservation become
// durable together; terminal transitions release the remaining reservation
// the same way.
type Service struct {
	orders     Repository
	store      Store
	markets    market.Repository
	wallets    wallet.Repository
	queue      trigger.Enqueuer
	notifier   notification.Notifier
	authorizer authz.Authorizer
	logger     *slog.Logger
}

// NewService builds an order service instance.
func NewService(orders Repository, store Store, markets market.Repository, wallets wallet.Repository,
	queue trigger.Enqueuer, notifier notification.Notifier,
	authorizer authz.Authorizer, logger *slog.Logger) *Service {
	return &Service{
		orders:     orders,
		store:      store,
		markets:    markets,
		wallets:    wallets,
		queue:      queue,
		notifier:   notifier,
		authorizer: authorizer,
		logger:     logger,
	}
}

// CreateInput captures a requested limit order.
type CreateInput struct {
	UserID      string
	MarketID    string
	Side        Side
	ShareAmount int64
	LimitPrice  decimal.Decimal
	ValidUntil  time.Time
}

// Create validates the request, then reserves the backing funds and records
// the order OPEN in a single transaction before handing it to the matching
// engine through the trigger queue. Matching failures are never surfaced
// here; the queue is at-least-once and the sweeper covers orders that were
// never matched.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.ShareAmount <= 0 {
		return Order{}, fmt.Errorf("share amount must be positive")
	}
	if input.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return Order{}, fmt.Errorf("limit price must be positive")
	}
	if input.Side != SideBuy && input.Side != SideSell {
		return Order{}, fmt.Errorf("invalid order side %q", input.Side)
	}
	now := time.Now().UTC()
	if !input.ValidUntil.After(now) {
		return Order{}, fmt.Errorf("valid_until must be in the future")
	}

	m, err := s.markets.Get(ctx, input.MarketID)
	if err != nil {
		return Order{}, err
	}
	if !m.Open() {
		return Order{}, market.ErrNotOpen
	}

	w, err := s.wallets.ByOwnerRole(ctx, input.UserID, wallet.RoleAvailable)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		MarketID:    input.MarketID,
		Side:        input.Side,
		ShareAmount: input.ShareAmount,
		LimitPrice:  input.LimitPrice,
		Status:      StatusOpen,
		ValidUntil:  input.ValidUntil.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	token := ReserveToken(input.Side, m)
	amount := ReserveAmount(input.Side, input.ShareAmount, input.LimitPrice)
	if err := s.store.CreateReserving(ctx, o, w.ID, token, amount); err != nil {
		return Order{}, err
	}

	if err := s.queue.Enqueue(ctx, o.ID); err != nil {
		s.logger.Error("enqueue order trigger", "order_id", o.ID, "error", err)
	}
	return o, nil
}

// Cancel moves an open order to CANCELLED and releases its remaining
// reservation in the same transaction. Cancelling an already-terminal order
// is a no-op returning the current state; it never fails visibly.
func (s *Service) Cancel(ctx context.Context, orderID string, actor authz.Actor) (Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !s.authorizer.CanMutate(actor, o.UserID) {
		return Order{}, authz.ErrForbidden
	}

	updated, applied, err := s.terminate(ctx, o, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	if !applied {
		return updated, nil
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindOrderCancelled,
			Destination: updated.UserID,
			Body:        fmt.Sprintf("Order %s cancelled with %d shares unfilled", updated.ID, updated.Remaining()),
		})
	}
	return updated, nil
}

// Expire moves an overdue open order to EXPIRED, releasing its remaining
// reservation in the same transaction. The sweeper drives this per due order;
// applied is false when a fill, cancel or another sweeper won the race.
func (s *Service) Expire(ctx context.Context, o Order) (Order, bool, error) {
	return s.terminate(ctx, o, StatusExpired)
}

// Get retrieves an order.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.orders.Get(ctx, id)
}

// terminate applies a terminal transition with its reservation release. When
// the market, wallet or balance backing the reservation cannot be found the
// reserved funds are unrecoverable; that is a ledger anomaly, reported loudly
// while the order still transitions so the book stays consistent.
func (s *Service) terminate(ctx context.Context, o Order, to string) (Order, bool, error) {
	m, err := s.markets.Get(ctx, o.MarketID)
	if err != nil {
		s.logger.Error("reservation_leak: market lookup failed on release", "order_id", o.ID, "market_id", o.MarketID, "error", err)
		return s.orders.Terminate(ctx, o.ID, to)
	}
	w, err := s.wallets.ByOwnerRole(ctx, o.UserID, wallet.RoleAvailable)
	if err != nil {
		s.logger.Error("reservation_leak: no available wallet on release", "order_id", o.ID, "user_id", o.UserID, "error", err)
		return s.orders.Terminate(ctx, o.ID, to)
	}

	token := ReserveToken(o.Side, m)
	updated, applied, err := s.store.TerminateReleasing(ctx, o.ID, to, w.ID, token)
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			s.logger.Error("reservation_leak: balance missing on release", "order_id", o.ID, "wallet_id", w.ID, "token", token)
			return updated, applied, nil
		}
		return Order{}, false, err
	}
	return updated, applied, nil
}

// ReserveToken selects the token a side's reservation locks: a BUY locks the
// market's base token, a SELL the outcome share token.
func ReserveToken(side Side, m market.Market) string {
	if side == SideSell {
		return m.ShareToken
	}
	return m.BaseToken
}
