package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/notification"
	"github.com/augury-markets/augury/internal/order"
)

// Engine runs the matching pass for newly created orders. It is invoked
// asynchronously, at least once per order; every step is guarded so that
// redelivery and races with expiry or cancellation degrade to no-ops.
type Engine struct {
	orders   order.Repository
	markets  market.Repository
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewEngine builds a matching engine.
func NewEngine(orders order.Repository, markets market.Repository, store Store,
	notifier notification.Notifier, logger *slog.Logger) *Engine {
	return &Engine{orders: orders, markets: markets, store: store, notifier: notifier, logger: logger}
}

// Match crosses the order against the opposite side of the book in price-time
// priority until it is filled or no crossable counter-order remains. Only
// transient store failures return an error (the trigger queue redelivers);
// everything else is a completed pass.
func (e *Engine) Match(ctx context.Context, orderID string) error {
	taker, err := e.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			e.logger.Warn("matching trigger for unknown order", "order_id", orderID)
			return nil
		}
		return err
	}
	if !taker.IsOpen() {
		return nil
	}

	m, err := e.markets.Get(ctx, taker.MarketID)
	if err != nil {
		return err
	}
	if !m.Open() {
		e.logger.Info("matching skipped, market not open", "order_id", orderID, "market_id", m.ID, "status", m.Status)
		return nil
	}

	candidates, err := e.orders.OpenCounterparties(ctx, m.ID, taker.Side.Opposite())
	if err != nil {
		return err
	}

	for _, maker := range candidates {
		if taker.Remaining() <= 0 {
			break
		}
		if !crossable(taker, maker) {
			// Candidates are price-sorted; the first non-crossing one ends the pass.
			break
		}

		res, err := e.store.Crossing(ctx, m, taker.ID, maker.ID)
		if errors.Is(err, order.ErrNotOpen) {
			// One side reached a terminal state since the scan. Skip, keep going.
			continue
		}
		if errors.Is(err, ErrNoCross) {
			break
		}
		if err != nil {
			return fmt.Errorf("crossing %s x %s: %w", taker.ID, maker.ID, err)
		}

		taker = res.Taker
		e.notifyFill(ctx, res.Taker)
		e.notifyFill(ctx, res.Maker)
		e.logger.Info("orders crossed",
			"market_id", m.ID,
			"taker_id", res.Taker.ID,
			"maker_id", res.Maker.ID,
			"quantity", res.Quantity,
			"price", res.Price.String(),
		)
	}
	return nil
}

func crossable(a, b order.Order) bool {
	buy, sell := a, b
	if a.Side == order.SideSell {
		buy, sell = b, a
	}
	return order.Crosses(buy.LimitPrice, sell.LimitPrice)
}

func (e *Engine) notifyFill(ctx context.Context, o order.Order) {
	if e.notifier == nil {
		return
	}
	kind := notification.KindOrderPartial
	if o.Status == order.StatusFilled {
		kind = notification.KindOrderFilled
	}
	_ = e.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: o.UserID,
		Body:        fmt.Sprintf("Order %s filled %d of %d", o.ID, o.Filled, o.ShareAmount),
	})
}
