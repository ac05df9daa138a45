package middleware

import (
	"log"

	"moltingpot/internal/services"
	"moltingpot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthMiddleware requires an operator JWT carrying role=admin.
// A nil authority means ADMIN_JWT_SECRET is unset and admin routes are disabled.
func AdminAuthMiddleware(authority *auth.AdminJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if authority == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "Admin access is not configured",
				"code":    services.KindServiceUnavailable.String(),
			})
		}

		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return unauthorized(c, "Admin token required")
		}

		admin, err := authority.Verify(token)
		if err != nil {
			log.Printf("⚠️  [AUTH] Invalid admin token from %s: %v", c.IP(), err)
			return unauthorized(c, "Invalid or expired admin token")
		}

		c.Locals("admin", admin)
		c.Locals("admin_subject", admin.Subject)
		return c.Next()
	}
}
