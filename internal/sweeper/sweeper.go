// Package sweeper runs the periodic lifecycle passes: expiring overdue
// orders and closing overdue markets.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/notification"
	"github.com/augury-markets/augury/internal/order"
)

const defaultBatchSize = 256

// Sweeper expires orders past their valid_until and closes markets past
// their close time. Both passes are idempotent: reruns and overlapping
// instances converge on the same state.
type Sweeper struct {
	orders      order.Repository
	markets     market.Repository
	orderSvc    *order.Service
	notifier    notification.Notifier
	logger      *slog.Logger
	orderEvery  time.Duration
	marketEvery time.Duration
	expiryBatch int
	nowFn       func() time.Time
}

// Config carries the sweep cadence. Zero intervals fall back to the
// defaults of one minute for orders and one hour for markets.
type Config struct {
	OrderInterval  time.Duration
	MarketInterval time.Duration
	ExpiryBatch    int
}

// New builds a sweeper over the given repositories.
func New(orders order.Repository, markets market.Repository, orderSvc *order.Service,
	notifier notification.Notifier, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.OrderInterval <= 0 {
		cfg.OrderInterval = time.Minute
	}
	if cfg.MarketInterval <= 0 {
		cfg.MarketInterval = time.Hour
	}
	if cfg.ExpiryBatch <= 0 {
		cfg.ExpiryBatch = defaultBatchSize
	}
	return &Sweeper{
		orders:      orders,
		markets:     markets,
		orderSvc:    orderSvc,
		notifier:    notifier,
		logger:      logger,
		orderEvery:  cfg.OrderInterval,
		marketEvery: cfg.MarketInterval,
		expiryBatch: cfg.ExpiryBatch,
		nowFn:       time.Now,
	}
}

// Run blocks, driving both passes on their tickers until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	orderTick := time.NewTicker(s.orderEvery)
	defer orderTick.Stop()
	marketTick := time.NewTicker(s.marketEvery)
	defer marketTick.Stop()

	s.logger.Info("sweeper started",
		"order_interval", s.orderEvery.String(),
		"market_interval", s.marketEvery.String(),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-orderTick.C:
			if err := s.SweepOrders(ctx); err != nil {
				s.logger.Error("order sweep failed", "error", err)
			}
		case <-marketTick.C:
			if err := s.SweepMarkets(ctx); err != nil {
				s.logger.Error("market sweep failed", "error", err)
			}
		}
	}
}

// SweepOrders expires every open order whose deadline has passed. Each order
// transitions and releases in one store transaction, so a concurrent cancel
// or a rerun can never release twice and a crash can never strand a terminal
// order still holding its reservation.
func (s *Sweeper) SweepOrders(ctx context.Context) error {
	now := s.nowFn()
	due, err := s.orders.DueForExpiry(ctx, now, s.expiryBatch)
	if err != nil {
		return fmt.Errorf("list due orders: %w", err)
	}

	expired := 0
	for _, o := range due {
		terminated, applied, err := s.orderSvc.Expire(ctx, o)
		if err != nil {
			s.logger.Error("expire order", "order_id", o.ID, "error", err)
			continue
		}
		if !applied {
			// Lost the race to a fill, cancel or another sweeper.
			continue
		}
		s.notifyExpired(ctx, terminated)
		expired++
	}
	if expired > 0 {
		s.logger.Info("orders expired", "count", expired, "scanned", len(due))
	}
	return nil
}

// SweepMarkets closes every open market whose close time has passed.
// Resting orders on a closed market are left to expire on their own
// deadlines; closing a market never touches reservations.
func (s *Sweeper) SweepMarkets(ctx context.Context) error {
	closed, err := s.markets.CloseDue(ctx, s.nowFn())
	if err != nil {
		return fmt.Errorf("close due markets: %w", err)
	}
	if closed > 0 {
		s.logger.Info("markets closed", "count", closed)
	}
	return nil
}

func (s *Sweeper) notifyExpired(ctx context.Context, o order.Order) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindOrderExpired,
		Destination: o.UserID,
		Body:        fmt.Sprintf("Order %s expired with %d unfilled", o.ID, o.Remaining()),
	})
}
