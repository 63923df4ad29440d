package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/augury-markets/augury/internal/order"
)

// RegisterOrderRoutes wires order lifecycle endpoints.
func RegisterOrderRoutes(r fiber.Router, h *order.Handler) {
	r.Post("/orders", withActor(h.Create))
	r.Get("/orders/:orderId", h.Get)
	r.Delete("/orders/:orderId", withActor(h.Cancel))
}
