package middleware

import (
	"log"
	"projectpilot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// LocalAuthMiddleware verifies local JWT tokens from the Authorization header.
// Requests without a verified identity are rejected; there is no anonymous
// or development fallback user.
func LocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtAuth == nil {
			log.Println("❌ Auth rejected: JWT not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Authentication service unavailable",
			})
		}

		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ Auth failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", user.ID)
		c.Locals("user_email", user.Email)
		c.Locals("user_role", user.Role)
		return c.Next()
	}
}
