package market

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/wallet"
)

// Handler exposes market HTTP endpoints.
type Handler struct {
	repo    Repository
	wallets *wallet.Service
	ledger  ledger.Ledger
}

// NewHandler builds a market HTTP handler.
func NewHandler(repo Repository, wallets *wallet.Service, led ledger.Ledger) *Handler {
	return &Handler{repo: repo, wallets: wallets, ledger: led}
}

type createRequest struct {
	Title      string    `json:"title"`
	CloseTime  time.Time `json:"close_time"`
	BaseToken  string    `json:"base_token"`
	ShareToken string    `json:"share_token"`
}

type marketResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	CloseTime  time.Time `json:"close_time"`
	BaseToken  string    `json:"base_token"`
	ShareToken string    `json:"share_token"`
	WalletID   string    `json:"wallet_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func toResponse(m Market) marketResponse {
	return marketResponse{
		ID:         m.ID,
		Title:      m.Title,
		Status:     m.Status,
		CloseTime:  m.CloseTime,
		BaseToken:  m.BaseToken,
		ShareToken: m.ShareToken,
		WalletID:   m.WalletID,
		CreatedAt:  m.CreatedAt,
	}
}

// Create opens a market with its custodial deposit wallet. Admin only.
func (h *Handler) Create(c *fiber.Ctx, actor authz.Actor) error {
	if !actor.Admin {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" || req.BaseToken == "" || req.ShareToken == "" {
		return fiber.NewError(http.StatusBadRequest, "title, base_token and share_token are required")
	}
	if !req.CloseTime.After(time.Now()) {
		return fiber.NewError(http.StatusBadRequest, "close_time must be in the future")
	}

	ctx := c.UserContext()
	w, err := h.wallets.Create(ctx, wallet.CreateInput{OwnerID: actor.UserID, Role: wallet.RoleDeposit})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.ledger.EnsureBalance(ctx, w.ID, req.BaseToken); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	m := Market{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Status:     StatusOpen,
		CloseTime:  req.CloseTime.UTC(),
		BaseToken:  req.BaseToken,
		ShareToken: req.ShareToken,
		WalletID:   w.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.repo.Create(ctx, m); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(m))
}

// Get returns market state.
func (h *Handler) Get(c *fiber.Ctx) error {
	m, err := h.repo.Get(c.UserContext(), c.Params("marketId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(m))
}
