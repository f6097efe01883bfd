// middleware/auth.go
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserContextMiddleware extracts the user identity set by the Gateway and
// attaches it to the request context. Routes that need a caller identity
// (prize poll/claim) sit behind it.
func UserContextMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Warn("X-User-ID missing on secured route", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}
