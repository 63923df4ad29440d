package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/augury-markets/augury/internal/authz"
)

const (
	userIDHeader = "X-User-ID"
	adminHeader  = "X-Admin"

	actorLocal = "actor"
)

// WithActor resolves the caller identity from the edge gateway's trusted
// headers and stashes it for handlers. Requests without X-User-ID proceed as
// an anonymous actor; mutation endpoints reject those via the authorizer.
func WithActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(actorLocal, authz.Actor{
			UserID: c.Get(userIDHeader),
			Admin:  c.Get(adminHeader) == "true",
		})
		return c.Next()
	}
}

// ActorFrom returns the actor resolved by WithActor.
func ActorFrom(c *fiber.Ctx) authz.Actor {
	actor, _ := c.Locals(actorLocal).(authz.Actor)
	return actor
}
