package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/notify"
	"github.com/noteduco342/unichat-backend/internal/service"
)

// UnreadHandler serves read cursors to clients without a live session.
type UnreadHandler struct {
	cursors        notify.CursorStore
	messageService *service.MessageService
	windowSize     int
}

func NewUnreadHandler(cursors notify.CursorStore, messageService *service.MessageService, windowSize int) *UnreadHandler {
	return &UnreadHandler{cursors: cursors, messageService: messageService, windowSize: windowSize}
}

func (h *UnreadHandler) GetUnread(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	counts, err := notify.CountOnce(c.UserContext(), h.cursors, h.messageService, identity.UserID, h.windowSize)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(counts)
}

func (h *UnreadHandler) MarkGroupRead(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	groupID := c.Params("id")
	lastRead, err := notify.MarkReadOnce(c.UserContext(), h.cursors, h.messageService, identity.UserID, groupID, h.windowSize, time.Now())
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"group_id": groupID, "last_read": lastRead})
}
