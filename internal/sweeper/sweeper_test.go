package sweeper

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
	sweeper *Sweeper
	orders  *order.MemoryRepository
	markets market.Repository
	wallets wallet.Repository
	ledger  *ledger.Memory
	svc     *order.Service
	market  market.Market
	userID  string
	wallet  wallet.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	orders := order.NewMemoryRepository()
	markets := market.NewMemoryRepository()
	wallets := wallet.NewMemoryRepository()
	led := ledger.NewMemory()

	m := market.Market{
		ID:         uuid.NewString(),
		Title:      "Will the bridge reopen by winter?",
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

	userID := uuid.NewString()
	w := wallet.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Role:      wallet.RoleAvailable,
		Status:    wallet.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := wallets.Create(ctx, w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	svc := order.NewService(orders, order.NewMemoryStore(orders, led), markets, wallets, trigger.NewMemoryQueue(16), nil, authz.OwnerOrAdmin{}, logging.Discard())
	sw := New(orders, markets, svc, nil, logging.Discard(), Config{})

	return &fixture{sweeper: sw, orders: orders, markets: markets, wallets: wallets, ledger: led,
		svc: svc, market: m, userID: userID, wallet: w}
}

func (f *fixture) place(t *testing.T, side order.Side, amount int64, price string, validFor time.Duration) order.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), order.CreateInput{
		UserID:      f.userID,
		MarketID:    f.market.ID,
		Side:        side,
		ShareAmount: amount,
		LimitPrice:  decimal.RequireFromString(price),
		ValidUntil:  time.Now().Add(validFor),
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return o
}

func TestSweepOrdersExpiresAndReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, f.wallet.ID, "YES", 5, 0)

	o := f.place(t, order.SideSell, 5, "1", time.Minute)

	// Jump past the deadline.
	f.sweeper.nowFn = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := f.sweeper.SweepOrders(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := f.orders.Get(ctx, o.ID)
	if got.Status != order.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
	bal, _ := f.ledger.Balance(ctx, f.wallet.ID, "YES")
	if bal.Reserved != 0 || bal.Quantity != 5 {
		t.Fatalf("expiry must release the full reservation: quantity=%d reserved=%d", bal.Quantity, bal.Reserved)
	}
}

func TestSweepOrdersIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, f.wallet.ID, "PLAY", 20, 0)

	f.place(t, order.SideBuy, 10, "2", time.Minute)

	f.sweeper.nowFn = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := f.sweeper.SweepOrders(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := f.sweeper.SweepOrders(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	bal, _ := f.ledger.Balance(ctx, f.wallet.ID, "PLAY")
	if bal.Reserved != 0 || bal.Quantity != 20 {
		t.Fatalf("double release detected: quantity=%d reserved=%d", bal.Quantity, bal.Reserved)
	}
}

func TestSweepOrdersSkipsCancelledRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, f.wallet.ID, "PLAY", 20, 0)

	o := f.place(t, order.SideBuy, 10, "2", time.Minute)
	if _, err := f.svc.Cancel(ctx, o.ID, authz.Actor{UserID: f.userID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	f.sweeper.nowFn = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := f.sweeper.SweepOrders(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := f.orders.Get(ctx, o.ID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("sweep must not overwrite CANCELLED, got %s", got.Status)
	}
	bal, _ := f.ledger.Balance(ctx, f.wallet.ID, "PLAY")
	if bal.Reserved != 0 || bal.Quantity != 20 {
		t.Fatalf("cancel already released; sweep must not release again: quantity=%d reserved=%d", bal.Quantity, bal.Reserved)
	}
}

func TestSweepOrdersExpiresWhenWalletGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, f.wallet.ID, "YES", 5, 0)

	o := f.place(t, order.SideSell, 5, "1", time.Minute)

	// The wallet disappears while the order rests. Expiry must still land;
	// the stranded reservation is logged, never a reason to keep the order open.
	if err := f.wallets.SoftDelete(ctx, f.wallet.ID); err != nil {
		t.Fatalf("soft delete wallet: %v", err)
	}

	f.sweeper.nowFn = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := f.sweeper.SweepOrders(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := f.orders.Get(ctx, o.ID)
	if got.Status != order.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
}

func TestSweepMarketsClosesDueMarkets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger.SeedBalance(f.ledger, f.wallet.ID, "PLAY", 20, 0)

	// A resting order on a market about to close keeps its reservation.
	f.place(t, order.SideBuy, 10, "2", 48*time.Hour)

	f.sweeper.nowFn = func() time.Time { return f.market.CloseTime.Add(time.Minute) }
	if err := f.sweeper.SweepMarkets(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	m, _ := f.markets.Get(ctx, f.market.ID)
	if m.Status != market.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", m.Status)
	}
	bal, _ := f.ledger.Balance(ctx, f.wallet.ID, "PLAY")
	if bal.Reserved != 10*2 {
		t.Fatalf("market closure must not touch reservations, reserved=%d", bal.Reserved)
	}

	// Rerun converges.
	if err := f.sweeper.SweepMarkets(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	m, _ = f.markets.Get(ctx, f.market.ID)
	if m.Status != market.StatusClosed {
		t.Fatalf("expected CLOSED after rerun, got %s", m.Status)
	}
}
