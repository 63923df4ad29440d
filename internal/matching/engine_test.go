package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/logging"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/order"
	"github.com/augury-markets/augury/internal/trigger"
	"github.com/augury-markets/augury/internal/wallet"
)

type fixture struct {
	orders  *order.MemoryRepository
	markets market.Repository
	wallets wallet.Repository
	ledger  *ledger.Memory
	svc     *order.Service
	engine  *Engine
	store   Store
	market  market.Market
}

func newFixture(t *testing.T, feeRate decimal.Decimal, feeWalletID string) *fixture {
	t.Helper()
	ctx := context.Background()

	orders := order.NewMemoryRepository()
	markets := market.NewMemoryRepository()
	wallets := wallet.NewMemoryRepository()
	led := ledger.NewMemory()

	m := market.Market{
		ID:         uuid.NewString(),
		Title:      "Will the launch happen this quarter?",
		Status:     market.StatusOpen,
		CloseTime:  time.Now().Add(24 * time.Hour),
		BaseToken:  "PLAY",
		ShareToken: "YES",
		WalletID:   uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := markets.Create(ctx, m); err != nil {
		t.Fatalf("create market: %v", err)
	}

	svc := order.NewService(orders, order.NewMemoryStore(orders, led), markets, wallets, trigger.NewMemoryQueue(16), nil, authz.OwnerOrAdmin{}, logging.Discard())
	store := NewMemoryStore(orders, wallets, led, feeRate, feeWalletID)
	engine := NewEngine(orders, markets, store, nil, logging.Discard())

	return &fixture{orders: orders, markets: markets, wallets: wallets, ledger: led,
		svc: svc, engine: engine, store: store, market: m}
}

// user provisions an owner with an available wallet and a seeded balance.
func (f *fixture) user(t *testing.T, token string, quantity int64) (string, wallet.Wallet) {
	t.Helper()
	userID := uuid.NewString()
	w := wallet.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Role:      wallet.RoleAvailable,
		Status:    wallet.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.wallets.Create(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(f.ledger, w.ID, token, quantity, 0)
	return userID, w
}

func (f *fixture) place(t *testing.T, userID string, side order.Side, amount int64, price string) order.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), order.CreateInput{
		UserID:      userID,
		MarketID:    f.market.ID,
		Side:        side,
		ShareAmount: amount,
		LimitPrice:  decimal.RequireFromString(price),
		ValidUntil:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("place %s %d@%s: %v", side, amount, price, err)
	}
	return o
}

func TestMatchPartialFill(t *testing.T) {
	f := newFixture(t, decimal.Zero, "")
	ctx := context.Background()

	sellerID, sellerW := f.user(t, "YES", 4)
	buyerID, buyerW := f.user(t, "PLAY", 25)

	f.place(t, sellerID, order.SideSell, 4, "2")
	buy := f.place(t, buyerID, order.SideBuy, 10, "2")

	if err := f.engine.Match(ctx, buy.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	got, err := f.orders.Get(ctx, buy.ID)
	if err != nil {
		t.Fatalf("get taker: %v", err)
	}
	if got.Status != order.StatusPartial || got.Filled != 4 {
		t.Fatalf("taker should be PARTIALLY_FILLED with 4, got %s filled=%d", got.Status, got.Filled)
	}

	buyerBase, _ := f.ledger.Balance(ctx, buyerW.ID, "PLAY")
	// Reserved 20 for 10@2; the fill costs 8 and the remaining 6@2 still
	// needs 12, so nothing extra is released.
	if buyerBase.Quantity != 17 || buyerBase.Reserved != 12 {
		t.Fatalf("buyer base: quantity=%d reserved=%d", buyerBase.Quantity, buyerBase.Reserved)
	}
	buyerShares, _ := f.ledger.Balance(ctx, buyerW.ID, "YES")
	if buyerShares.Quantity != 4 {
		t.Fatalf("buyer should hold 4 shares, got %d", buyerShares.Quantity)
	}

	sellerBase, _ := f.ledger.Balance(ctx, sellerW.ID, "PLAY")
	if sellerBase.Quantity != 8 {
		t.Fatalf("seller should receive 8 base, got %d", sellerBase.Quantity)
	}
	sellerShares, _ := f.ledger.Balance(ctx, sellerW.ID, "YES")
	if sellerShares.Quantity != 0 || sellerShares.Reserved != 0 {
		t.Fatalf("seller shares: quantity=%d reserved=%d", sellerShares.Quantity, sellerShares.Reserved)
	}

	if total := ledger.TotalQuantity(f.ledger, "PLAY"); total != 25 {
		t.Fatalf("base token not conserved: %d", total)
	}
}

func TestMatchPriceTimePriorityAndSpreadRelease(t *testing.T) {
	f := newFixture(t, decimal.Zero, "")
	ctx := context.Background()

	cheapID, cheapW := f.user(t, "YES", 3)
	dearID, _ := f.user(t, "YES", 3)
	buyerID, buyerW := f.user(t, "PLAY", 10)

	cheap := f.place(t, cheapID, order.SideSell, 3, "1")
	dear := f.place(t, dearID, order.SideSell, 3, "2")
	buy := f.place(t, buyerID, order.SideBuy, 4, "2")

	if err := f.engine.Match(ctx, buy.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	gotCheap, _ := f.orders.Get(ctx, cheap.ID)
	if gotCheap.Status != order.StatusFilled {
		t.Fatalf("cheapest maker must fill first, got %s", gotCheap.Status)
	}
	gotDear, _ := f.orders.Get(ctx, dear.ID)
	if gotDear.Filled != 1 {
		t.Fatalf("second maker should fill the remaining 1, got %d", gotDear.Filled)
	}
	gotBuy, _ := f.orders.Get(ctx, buy.ID)
	if gotBuy.Status != order.StatusFilled {
		t.Fatalf("taker should be FILLED, got %s", gotBuy.Status)
	}

	// Trades execute at the makers' limits: 3@1 then 1@2 costs 5, and the
	// unused part of the 8-unit ceiling reservation comes back.
	cheapBase, _ := f.ledger.Balance(ctx, cheapW.ID, "PLAY")
	if cheapBase.Quantity != 3 {
		t.Fatalf("cheap maker should receive 3 base, got %d", cheapBase.Quantity)
	}
	buyerBase, _ := f.ledger.Balance(ctx, buyerW.ID, "PLAY")
	if buyerBase.Quantity != 5 || buyerBase.Reserved != 0 {
		t.Fatalf("buyer base: quantity=%d reserved=%d, want 5/0", buyerBase.Quantity, buyerBase.Reserved)
	}
	buyerShares, _ := f.ledger.Balance(ctx, buyerW.ID, "YES")
	if buyerShares.Quantity != 4 {
		t.Fatalf("buyer should hold 4 shares, got %d", buyerShares.Quantity)
	}
}

// cancelBeforeCrossing simulates a maker reaching a terminal state between
// the candidate scan and the crossing.
type cancelBeforeCrossing struct {
	inner    Store
	orders   *order.MemoryRepository
	targetID string
	done     bool
}

func (s *cancelBeforeCrossing) Crossing(ctx context.Context, m market.Market, takerID, makerID string) (CrossingResult, error) {
	if !s.done && makerID == s.targetID {
		s.done = true
		if _, _, err := s.orders.Terminate(ctx, s.targetID, order.StatusCancelled); err != nil {
			return CrossingResult{}, err
		}
	}
	return s.inner.Crossing(ctx, m, takerID, makerID)
}

func TestMatchSkipsTerminalMaker(t *testing.T) {
	f := newFixture(t, decimal.Zero, "")
	ctx := context.Background()

	goneID, _ := f.user(t, "YES", 5)
	restingID, _ := f.user(t, "YES", 5)
	buyerID, _ := f.user(t, "PLAY", 20)

	gone := f.place(t, goneID, order.SideSell, 5, "1")
	resting := f.place(t, restingID, order.SideSell, 5, "2")
	buy := f.place(t, buyerID, order.SideBuy, 5, "2")

	engine := NewEngine(f.orders, f.markets, &cancelBeforeCrossing{inner: f.store, orders: f.orders, targetID: gone.ID}, nil, logging.Discard())
	if err := engine.Match(ctx, buy.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	gotGone, _ := f.orders.Get(ctx, gone.ID)
	if gotGone.Status != order.StatusCancelled || gotGone.Filled != 0 {
		t.Fatalf("cancelled maker must stay untouched, got %s filled=%d", gotGone.Status, gotGone.Filled)
	}
	gotResting, _ := f.orders.Get(ctx, resting.ID)
	if gotResting.Status != order.StatusFilled {
		t.Fatalf("pass must continue past the terminal maker, resting is %s", gotResting.Status)
	}
	gotBuy, _ := f.orders.Get(ctx, buy.ID)
	if gotBuy.Status != order.StatusFilled {
		t.Fatalf("taker should be FILLED, got %s", gotBuy.Status)
	}
}

func TestMatchStopsAtFirstNonCrossingPrice(t *testing.T) {
	f := newFixture(t, decimal.Zero, "")
	ctx := context.Background()

	sellerID, _ := f.user(t, "YES", 5)
	buyerID, buyerW := f.user(t, "PLAY", 20)

	f.place(t, sellerID, order.SideSell, 5, "3")
	buy := f.place(t, buyerID, order.SideBuy, 5, "2")

	if err := f.engine.Match(ctx, buy.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	gotBuy, _ := f.orders.Get(ctx, buy.ID)
	if gotBuy.Status != order.StatusOpen || gotBuy.Filled != 0 {
		t.Fatalf("order must rest untouched, got %s filled=%d", gotBuy.Status, gotBuy.Filled)
	}
	bal, _ := f.ledger.Balance(ctx, buyerW.ID, "PLAY")
	if bal.Reserved != 10 {
		t.Fatalf("reservation must stay at 10, got %d", bal.Reserved)
	}
}

func TestMatchRoutesFee(t *testing.T) {
	feeWalletID := uuid.NewString()
	f := newFixture(t, decimal.RequireFromString("0.25"), feeWalletID)
	ctx := context.Background()

	ledger.SeedBalance(f.ledger, feeWalletID, "PLAY", 0, 0)

	sellerID, sellerW := f.user(t, "YES", 4)
	buyerID, _ := f.user(t, "PLAY", 8)

	f.place(t, sellerID, order.SideSell, 4, "2")
	buy := f.place(t, buyerID, order.SideBuy, 4, "2")

	if err := f.engine.Match(ctx, buy.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	// Cost 8, fee floor(8 x 0.25) = 2 out of the seller's proceeds.
	sellerBase, _ := f.ledger.Balance(ctx, sellerW.ID, "PLAY")
	if sellerBase.Quantity != 6 {
		t.Fatalf("seller should net 6 after the fee, got %d", sellerBase.Quantity)
	}
	feeBal, _ := f.ledger.Balance(ctx, feeWalletID, "PLAY")
	if feeBal.Quantity != 2 {
		t.Fatalf("fee wallet should hold 2, got %d", feeBal.Quantity)
	}
	if total := ledger.TotalQuantity(f.ledger, "PLAY"); total != 8 {
		t.Fatalf("base token not conserved: %d", total)
	}
}

func TestMatchUnknownOrderIsNoOp(t *testing.T) {
	f := newFixture(t, decimal.Zero, "")
	if err := f.engine.Match(context.Background(), uuid.NewString()); err != nil {
		t.Fatalf("unknown order must not error: %v", err)
	}
}
