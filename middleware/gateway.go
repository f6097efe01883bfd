// middleware/gateway.go
package middleware

import (
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway. Every
// request must come through the gateway — ingestion and dashboards included.
func GatewayAuthMiddleware(log *zap.Logger) fiber.Handler {
	expectedToken := os.Getenv("ANALYTICS_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("ANALYTICS_SERVICE_TOKEN is not set — service cannot authenticate gateway")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Warn("missing Authorization header", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != expectedToken {
			log.Warn("invalid gateway token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
