package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
	pageSize       int
}

func NewMessageHandler(messageService *service.MessageService, pageSize int) *MessageHandler {
	return &MessageHandler{messageService: messageService, pageSize: pageSize}
}

// GetOlderPage returns messages strictly older than (before, before_id).
func (h *MessageHandler) GetOlderPage(c *fiber.Ctx) error {
	if _, err := httpx.LocalIdentity(c); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	beforeStr := strings.TrimSpace(c.Query("before"))
	if beforeStr == "" {
		return httpx.BadRequest(c, "missing_cursor", "before is required")
	}
	before, err := time.Parse(time.RFC3339Nano, beforeStr)
	if err != nil {
		return httpx.BadRequest(c, "invalid_cursor", "before must be an RFC 3339 timestamp")
	}

	limit := h.pageSize
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= service.MaxPageSize {
			limit = l
		}
	}

	cursor := models.Cursor{CreatedAt: before.UTC(), ID: strings.TrimSpace(c.Query("before_id"))}
	messages, err := h.messageService.FetchOlderPage(c.UserContext(), c.Params("id"), cursor, limit)
	if err != nil {
		return httpx.FromError(c, err)
	}

	result := fiber.Map{
		"messages": messages,
		"count":    len(messages),
		// An empty page is the end of the history.
		"has_more": len(messages) > 0,
	}
	if len(messages) > 0 {
		// Pages are ascending; the first element is the next cursor.
		result["next_cursor"] = messages[0].Cursor()
	}
	return c.JSON(result)
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	message, err := h.messageService.SendMessage(c.UserContext(), identity, c.Params("id"), input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	if err := h.messageService.DeleteMessage(c.UserContext(), identity.UserID, c.Params("id"), c.Params("messageId")); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
