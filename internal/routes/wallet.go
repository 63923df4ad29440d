package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/augury-markets/augury/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/users/onboard", withActor(h.Onboard))
	r.Post("/wallets", withActor(h.Create))
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balances", h.Balances)
	r.Post("/wallets/:walletId/transfers", withActor(h.Transfer))
	r.Delete("/wallets/:walletId", withActor(h.Remove))
}
