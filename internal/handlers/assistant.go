package handlers

import (
	"context"
	"log"
	"projectpilot/internal/models"
	"projectpilot/internal/services"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// AssistantService answers chat prompts and reads conversations
type AssistantService interface {
	Chat(ctx context.Context, userID string, req models.AssistantRequest) (*models.AssistantResponse, error)
	GetConversation(ctx context.Context, userID, projectID string, limit int) (*models.ConversationHistoryResponse, error)
}

// AssistantHandler handles the assistant chat endpoints
type AssistantHandler struct {
	assistant AssistantService
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(assistant AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Chat answers one prompt about a project
// POST /api/assistant/chat
func (h *AssistantHandler) Chat(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.AssistantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.assistant.Chat(c.UserContext(), userID, req)
	if err != nil {
		return errorResponse(c, err, "assistant chat")
	}
	return c.JSON(resp)
}

// GetConversation returns the caller's conversation for a project
// GET /api/assistant/conversations/:projectId?limit=10
func (h *AssistantHandler) GetConversation(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = n
	}

	conv, err := h.assistant.GetConversation(c.UserContext(), userID, c.Params("projectId"), limit)
	if err != nil {
		return errorResponse(c, err, "get conversation")
	}
	return c.JSON(conv)
}

// errorResponse maps typed service errors to their status. Unknown errors
// are logged and returned as a generic 500.
func errorResponse(c *fiber.Ctx, err error, operation string) error {
	status := services.StatusCodeFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [ASSISTANT] %s failed: %v", operation, err)
		return c.Status(status).JSON(fiber.Map{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
