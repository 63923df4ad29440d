package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/order"
)

// PostgresStore executes crossings against PostgreSQL. Each crossing is one
// transaction: both order rows are locked in ascending id order (concurrent
// crossings touching the same pair cannot deadlock), re-validated, then the
// fills, settlements and transfer records are applied together.
type PostgresStore struct {
	db          *pgxpool.Pool
	feeRate     decimal.Decimal
	feeWalletID string
}

// NewPostgresStore builds a crossing store. Fee settings may be zero-valued
// to disable fee routing.
func NewPostgresStore(db *pgxpool.Pool, feeRate decimal.Decimal, feeWalletID string) *PostgresStore {
	return &PostgresStore{db: db, feeRate: feeRate, feeWalletID: feeWalletID}
}

// Crossing applies one fill between taker and maker.
func (s *PostgresStore) Crossing(ctx context.Context, m market.Market, takerID, makerID string) (CrossingResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CrossingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	first, second := takerID, makerID
	if strings.Compare(second, first) < 0 {
		first, second = second, first
	}
	a, err := order.GetForUpdateTx(ctx, tx, first)
	if err != nil {
		return CrossingResult{}, err
	}
	b, err := order.GetForUpdateTx(ctx, tx, second)
	if err != nil {
		return CrossingResult{}, err
	}

	taker, maker := a, b
	if taker.ID != takerID {
		taker, maker = b, a
	}

	cross, err := validateCrossing(taker, maker)
	if err != nil {
		return CrossingResult{}, err
	}

	buyerWallet, err := availableWalletTx(ctx, tx, cross.buy.UserID)
	if err != nil {
		return CrossingResult{}, err
	}
	sellerWallet, err := availableWalletTx(ctx, tx, cross.sell.UserID)
	if err != nil {
		return CrossingResult{}, err
	}

	memo := fmt.Sprintf("trade %s x %s", taker.ID, maker.ID)
	baseLeg, err := ledger.ExecuteTx(ctx, tx, ledger.ExecuteInput{
		FromWalletID:    buyerWallet,
		ToWalletID:      sellerWallet,
		Token:           m.BaseToken,
		Amount:          cross.cost,
		Type:            ledger.TransferSettlement,
		FeeRate:         s.feeRate,
		FeeWalletID:     s.feeWalletID,
		Memo:            memo,
		ReserveRequired: true,
	})
	if err != nil {
		return CrossingResult{}, err
	}
	shareLeg, err := ledger.ExecuteTx(ctx, tx, ledger.ExecuteInput{
		FromWalletID:    sellerWallet,
		ToWalletID:      buyerWallet,
		Token:           m.ShareToken,
		Amount:          cross.qty,
		Type:            ledger.TransferSettlement,
		Memo:            memo,
		ReserveRequired: true,
	})
	if err != nil {
		return CrossingResult{}, err
	}

	// The buyer reserved at their own limit; trading at the maker's (never
	// higher) price leaves ceiling slack that must come unlocked now, or the
	// remaining reservation would exceed what the open remainder needs.
	if slack := buyerSlack(cross.buy, cross.qty, cross.cost); slack > 0 {
		if _, err := ledger.ReleaseTx(ctx, tx, buyerWallet, m.BaseToken, slack); err != nil {
			return CrossingResult{}, err
		}
	}

	taker, err = order.ApplyFillTx(ctx, tx, taker, cross.qty)
	if err != nil {
		return CrossingResult{}, err
	}
	maker, err = order.ApplyFillTx(ctx, tx, maker, cross.qty)
	if err != nil {
		return CrossingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CrossingResult{}, err
	}

	return CrossingResult{
		Taker:     taker,
		Maker:     maker,
		Quantity:  cross.qty,
		Price:     cross.price,
		Cost:      cross.cost,
		Transfers: []ledger.Transfer{baseLeg, shareLeg},
	}, nil
}

type crossing struct {
	buy   order.Order
	sell  order.Order
	qty   int64
	price decimal.Decimal
	cost  int64
}

// validateCrossing re-checks the pair under lock: both still open, opposite
// sides, limits meeting. The trade executes at the maker's limit price.
func validateCrossing(taker, maker order.Order) (crossing, error) {
	if !taker.IsOpen() || !maker.IsOpen() {
		return crossing{}, order.ErrNotOpen
	}
	if taker.Side == maker.Side {
		return crossing{}, fmt.Errorf("crossing requires opposite sides, both %s", taker.Side)
	}

	buy, sell := taker, maker
	if taker.Side == order.SideSell {
		buy, sell = maker, taker
	}
	if !order.Crosses(buy.LimitPrice, sell.LimitPrice) {
		return crossing{}, ErrNoCross
	}

	qty := taker.Remaining()
	if maker.Remaining() < qty {
		qty = maker.Remaining()
	}
	if qty <= 0 {
		return crossing{}, order.ErrNotOpen
	}

	price := maker.LimitPrice
	return crossing{buy: buy, sell: sell, qty: qty, price: price, cost: order.TradeCost(qty, price)}, nil
}

// buyerSlack is the part of the buyer's reservation freed by this fill beyond
// what the settlement itself consumed.
func buyerSlack(buy order.Order, qty, cost int64) int64 {
	before := order.ReserveAmount(order.SideBuy, buy.Remaining(), buy.LimitPrice)
	after := order.ReserveAmount(order.SideBuy, buy.Remaining()-qty, buy.LimitPrice)
	slack := before - after - cost
	if slack < 0 {
		return 0
	}
	return slack
}

func availableWalletTx(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE owner_id = $1 AND role = 'available' AND status = 'active'`, userID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("%w: no available wallet for user %s", ledger.ErrWalletNotFound, userID)
		}
		return "", err
	}
	return id, nil
}
