package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetCurrentUser refreshes the cached profile from the token and returns it.
func (h *UserHandler) GetCurrentUser(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	user, err := h.userService.SyncProfile(c.UserContext(), identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(user.ToResponse())
}

// GetUser returns another member's cached profile.
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	if _, err := httpx.LocalIdentity(c); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	user, err := h.userService.GetProfile(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(user.ToResponse())
}
