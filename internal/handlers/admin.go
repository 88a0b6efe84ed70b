package handlers

import (
	"log"
	"projectpilot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProjectCacheAdmin is the administrative surface of the project cache
type ProjectCacheAdmin interface {
	ClearAll()
	Invalidate(projectID string)
	Stats() services.CacheStats
}

// AdminHandler handles cache administration endpoints
type AdminHandler struct {
	cache ProjectCacheAdmin
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cache ProjectCacheAdmin) *AdminHandler {
	return &AdminHandler{cache: cache}
}

// GetCacheStats returns entry and subscription counts
// GET /api/admin/assistant/cache
func (h *AdminHandler) GetCacheStats(c *fiber.Ctx) error {
	return c.JSON(h.cache.Stats())
}

// ClearCache cancels every subscription and empties the cache
// POST /api/admin/assistant/cache/clear
func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	before := h.cache.Stats()
	h.cache.ClearAll()

	userID, _ := c.Locals("user_id").(string)
	log.Printf("🧹 [ADMIN] Project cache cleared by %s (%d entries, %d subscriptions)",
		userID, before.Entries, before.Subscriptions)

	return c.JSON(fiber.Map{
		"cleared":               true,
		"entries_removed":       before.Entries,
		"subscriptions_removed": before.Subscriptions,
	})
}

// InvalidateProject drops one project's entry and subscription
// DELETE /api/admin/assistant/cache/:projectId
func (h *AdminHandler) InvalidateProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}

	h.cache.Invalidate(projectID)
	return c.JSON(fiber.Map{
		"invalidated": projectID,
	})
}
