package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/augury-markets/augury/internal/market"
)

// RegisterMarketRoutes wires market endpoints.
func RegisterMarketRoutes(r fiber.Router, h *market.Handler) {
	r.Post("/markets", withActor(h.Create))
	r.Get("/markets/:marketId", h.Get)
}
