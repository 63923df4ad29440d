package wallet

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/logging"
)

type transferFixture struct {
	app    *fiber.App
	ledger *ledger.Memory
	from   Wallet
	to     Wallet
	feeID  string
}

func newTransferFixture(t *testing.T, feeWalletID string) *transferFixture {
	t.Helper()
	ctx := context.Background()

	repo := NewMemoryRepository()
	led := ledger.NewMemory()
	svc := NewService(repo, led, Grant{}, logging.Discard())

	userID := uuid.NewString()
	from := Wallet{ID: uuid.NewString(), OwnerID: userID, Role: RoleAvailable, Status: StatusActive, CreatedAt: time.Now().UTC()}
	to := Wallet{ID: uuid.NewString(), OwnerID: uuid.NewString(), Role: RoleAvailable, Status: StatusActive, CreatedAt: time.Now().UTC()}
	for _, w := range []Wallet{from, to} {
		if err := repo.Create(ctx, w); err != nil {
			t.Fatalf("create wallet: %v", err)
		}
	}
	ledger.SeedBalance(led, from.ID, "PLAY", 100, 0)
	ledger.SeedBalance(led, to.ID, "PLAY", 0, 0)
	if feeWalletID != "" {
		ledger.SeedBalance(led, feeWalletID, "PLAY", 0, 0)
	}

	h := NewHandler(svc, led, authz.OwnerOrAdmin{}, feeWalletID)
	app := fiber.New()
	app.Post("/wallets/:walletId/transfers", func(c *fiber.Ctx) error {
		return h.Transfer(c, authz.Actor{UserID: userID})
	})

	return &transferFixture{app: app, ledger: led, from: from, to: to, feeID: feeWalletID}
}

func TestTransferRoutesFeeToConfiguredWallet(t *testing.T) {
	feeID := uuid.NewString()
	f := newTransferFixture(t, feeID)
	ctx := context.Background()

	body := `{"to_wallet_id":"` + f.to.ID + `","token":"PLAY","amount":40,"fee_rate":"0.25"}`
	req := httptest.NewRequest(fiber.MethodPost, "/wallets/"+f.from.ID+"/transfers", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, resp.StatusCode)
	}

	fromBal, _ := f.ledger.Balance(ctx, f.from.ID, "PLAY")
	toBal, _ := f.ledger.Balance(ctx, f.to.ID, "PLAY")
	feeBal, _ := f.ledger.Balance(ctx, feeID, "PLAY")
	if fromBal.Quantity != 60 {
		t.Fatalf("sender should hold 60, got %d", fromBal.Quantity)
	}
	if toBal.Quantity != 30 {
		t.Fatalf("recipient should receive amount minus fee (30), got %d", toBal.Quantity)
	}
	if feeBal.Quantity != 10 {
		t.Fatalf("fee wallet should receive 10, got %d", feeBal.Quantity)
	}
}

func TestTransferRejectsFeeWithoutFeeWallet(t *testing.T) {
	f := newTransferFixture(t, "")
	ctx := context.Background()

	body := `{"to_wallet_id":"` + f.to.ID + `","token":"PLAY","amount":40,"fee_rate":"0.25"}`
	req := httptest.NewRequest(fiber.MethodPost, "/wallets/"+f.from.ID+"/transfers", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}

	fromBal, _ := f.ledger.Balance(ctx, f.from.ID, "PLAY")
	if fromBal.Quantity != 100 {
		t.Fatalf("rejected transfer must not move funds, got %d", fromBal.Quantity)
	}
}

func TestTransferWithoutFeeLeavesFeeWalletUntouched(t *testing.T) {
	feeID := uuid.NewString()
	f := newTransferFixture(t, feeID)
	ctx := context.Background()

	body := `{"to_wallet_id":"` + f.to.ID + `","token":"PLAY","amount":40}`
	req := httptest.NewRequest(fiber.MethodPost, "/wallets/"+f.from.ID+"/transfers", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, resp.StatusCode)
	}

	feeBal, _ := f.ledger.Balance(ctx, feeID, "PLAY")
	if feeBal.Quantity != 0 {
		t.Fatalf("no fee requested, fee wallet must stay empty, got %d", feeBal.Quantity)
	}
	toBal, _ := f.ledger.Balance(ctx, f.to.ID, "PLAY")
	if toBal.Quantity != 40 {
		t.Fatalf("recipient should receive the full amount, got %d", toBal.Quantity)
	}
}
