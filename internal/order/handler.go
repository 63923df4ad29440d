package order

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/ledger"
	"github.com/augury-markets/augury/internal/market"
)

// Handler exposes order HTTP endpoints.
type Handler struct {
	service    *Service
	authorizer authz.Authorizer
}

// NewHandler builds an order HTTP handler.
func NewHandler(service *Service, authorizer authz.Authorizer) *Handler {
	return &Handler{service: service, authorizer: authorizer}
}

type createRequest struct {
	MarketID    string    `json:"market_id"`
	Side        string    `json:"side"`
	ShareAmount int64     `json:"share_amount"`
	LimitPrice  string    `json:"limit_price"`
	ValidUntil  time.Time `json:"valid_until"`
}

type orderResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MarketID    string    `json:"market_id"`
	Side        string    `json:"side"`
	ShareAmount int64     `json:"share_amount"`
	Filled      int64     `json:"filled"`
	LimitPrice  string    `json:"limit_price"`
	Status      string    `json:"status"`
	ValidUntil  time.Time `json:"valid_until"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(o Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		MarketID:    o.MarketID,
		Side:        string(o.Side),
		ShareAmount: o.ShareAmount,
		Filled:      o.Filled,
		LimitPrice:  o.LimitPrice.String(),
		Status:      o.Status,
		ValidUntil:  o.ValidUntil,
		CreatedAt:   o.CreatedAt,
	}
}

// Create places a limit order for the calling user.
func (h *Handler) Create(c *fiber.Ctx, actor authz.Actor) error {
	if actor.UserID == "" {
		return fiber.NewError(http.StatusForbidden, authz.ErrForbidden.Error())
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	price, err := decimal.NewFromString(req.LimitPrice)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid limit_price")
	}

	o, err := h.service.Create(c.UserContext(), CreateInput{
		UserID:      actor.UserID,
		MarketID:    req.MarketID,
		Side:        Side(req.Side),
		ShareAmount: req.ShareAmount,
		LimitPrice:  price,
		ValidUntil:  req.ValidUntil,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, market.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrNotOpen):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(toResponse(o))
}

// Get returns order state.
func (h *Handler) Get(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(o))
}

// Cancel terminates an open order. Cancelling an already terminal order is
// not an error; the response carries the final state either way.
func (h *Handler) Cancel(c *fiber.Ctx, actor authz.Actor) error {
	o, err := h.service.Cancel(c.UserContext(), c.Params("orderId"), actor)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(o))
}
