package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type GroupHandler struct {
	groupService *service.GroupService
}

func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// GetDirectory lists every group with advisory member counts.
func (h *GroupHandler) GetDirectory(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	dir, err := h.groupService.Directory(c.UserContext(), identity.Major)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(dir)
}
