package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service     *Service
	ledger      ledger.Ledger
	authorizer  authz.Authorizer
	feeWalletID string
}

// NewHandler builds a wallet HTTP handler. feeWalletID receives transfer fees;
// requests carrying a fee_rate are rejected when it is empty.
func NewHandler(service *Service, led ledger.Ledger, authorizer authz.Authorizer, feeWalletID string) *Handler {
	return &Handler{service: service, ledger: led, authorizer: authorizer, feeWalletID: feeWalletID}
}

type onboardRequest struct {
	UserID string `json:"user_id"`
}

type createRequest struct {
	OwnerID  string `json:"owner_id"`
	Role     string `json:"role"`
	ParentID string `json:"parent_id"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Role      string    `json:"role"`
	ParentID  string    `json:"parent_id,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Role:      w.Role,
		ParentID:  w.ParentID,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
	}
}

// Onboard provisions (or returns) the caller's available wallet.
func (h *Handler) Onboard(c *fiber.Ctx, actor authz.Actor) error {
	var req onboardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		req.UserID = actor.UserID
	}
	if !h.authorizer.CanMutate(actor, req.UserID) {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}
	w, err := h.service.Onboard(c.UserContext(), req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// Create provisions a custodial wallet. Admin only.
func (h *Handler) Create(c *fiber.Ctx, actor authz.Actor) error {
	if !actor.Admin {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:  req.OwnerID,
		Role:     req.Role,
		ParentID: req.ParentID,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// Get returns wallet metadata.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// Balances returns point-in-time token balance snapshots.
func (h *Handler) Balances(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	balances, err := h.service.Balances(c.UserContext(), walletID)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	out := make([]fiber.Map, 0, len(balances))
	for _, b := range balances {
		out = append(out, fiber.Map{
			"token":     b.Token,
			"quantity":  b.Quantity,
			"reserved":  b.Reserved,
			"available": b.Available(),
			"version":   b.Version,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": walletID,
		"balances":  out,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Remove soft-deletes a wallet. Admin only.
func (h *Handler) Remove(c *fiber.Ctx, actor authz.Actor) error {
	if !actor.Admin {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}
	if err := h.service.Remove(c.UserContext(), c.Params("walletId")); err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

type transferRequest struct {
	ToWalletID string `json:"to_wallet_id"`
	Token      string `json:"token"`
	Amount     int64  `json:"amount"`
	FeeRate    string `json:"fee_rate"`
	Memo       string `json:"memo"`
}

// Transfer moves tokens out of a wallet: withdrawals, grants and other
// operator-driven movements. The caller must own the source wallet or be an
// admin; reservations are never touched here.
func (h *Handler) Transfer(c *fiber.Ctx, actor authz.Actor) error {
	fromID := c.Params("walletId")
	from, err := h.service.Get(c.UserContext(), fromID)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if !h.authorizer.CanMutate(actor, from.OwnerID) {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	feeRate := decimal.Zero
	if req.FeeRate != "" {
		if feeRate, err = decimal.NewFromString(req.FeeRate); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	feeWalletID := ""
	if feeRate.IsPositive() {
		if h.feeWalletID == "" {
			return fiber.NewError(http.StatusBadRequest, "fee_rate set but no fee wallet configured")
		}
		feeWalletID = h.feeWalletID
	}

	transfer, err := h.ledger.Execute(c.UserContext(), ledger.ExecuteInput{
		FromWalletID: fromID,
		ToWalletID:   req.ToWalletID,
		Token:        req.Token,
		Amount:       req.Amount,
		Type:         ledger.TransferWithdrawal,
		FeeRate:      feeRate,
		FeeWalletID:  feeWalletID,
		Memo:         req.Memo,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ledger.ErrBalanceNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transfer_id":    transfer.ID,
		"from_wallet_id": transfer.FromWalletID,
		"to_wallet_id":   transfer.ToWalletID,
		"token":          transfer.Token,
		"amount":         transfer.Amount,
		"fee":            transfer.Fee,
		"status":         transfer.Status,
		"created_at":     transfer.CreatedAt,
	})
}
