package middleware

import (
	"projectpilot/internal/config"

	"github.com/gofiber/fiber/v2"
)

// AdminMiddleware allows users with the "admin" role claim or listed in
// SUPERADMIN_USER_IDS. Must run after LocalAuthMiddleware.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(string)
		if !ok || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		role, _ := c.Locals("user_role").(string)
		if role != "admin" && !IsSuperadmin(userID, cfg) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		c.Locals("is_superadmin", true)
		return c.Next()
	}
}

// IsSuperadmin is a helper function to check if a user ID is a superadmin
func IsSuperadmin(userID string, cfg *config.Config) bool {
	for _, adminID := range cfg.SuperadminUserIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}
