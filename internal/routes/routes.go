package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/augury-markets/augury/internal/authz"
	"github.com/augury-markets/augury/internal/config"
	"github.com/augury-markets/augury/internal/market"
	"github.com/augury-markets/augury/internal/middleware"
	"github.com/augury-markets/augury/internal/order"
	"github.com/augury-markets/augury/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. Services are
// built in main so the matching workers and the sweeper share the same
// instances.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Wallets *wallet.Handler
	Orders  *order.Handler
	Markets *market.Handler
}

// actorHandler adapts handlers that need the resolved caller identity.
type actorHandler func(*fiber.Ctx, authz.Actor) error

func withActor(h actorHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h(c, middleware.ActorFrom(c))
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.WithActor())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, d.Wallets)
	RegisterMarketRoutes(api, d.Markets)
	RegisterOrderRoutes(api, d.Orders)
}
