package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/handlers/ws"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type AttachmentHandler struct {
	attachments *service.AttachmentService
	hub         *ws.Hub
}

func NewAttachmentHandler(attachments *service.AttachmentService, hub *ws.Hub) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, hub: hub}
}

// Upload stores a multipart "file" for a group. Progress is pushed to the
// uploader's live sessions as upload_progress frames.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	identity, err := httpx.LocalIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	if !h.attachments.Available() {
		return httpx.Unavailable(c, "storage_not_configured", "Storage not configured")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest(c, "missing_file", "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.BadRequest(c, "invalid_file", "Invalid file")
	}
	defer f.Close()

	groupID := c.Params("id")
	in := service.UploadInput{
		GroupID:  groupID,
		FileName: fh.Filename,
		Size:     fh.Size,
		Category: models.MimeCategory(strings.TrimSpace(c.FormValue("category"))),
		Body:     f,
	}
	// Progress goes to the uploader's live sessions; without one there is nobody to tell.
	var onProgress func(int)
	if h.hub != nil && h.hub.IsOnline(identity.UserID) {
		onProgress = func(percent int) {
			h.hub.SendToUser(identity.UserID, ws.TypeUploadProgress, ws.UploadProgress{
				GroupID:  groupID,
				FileName: fh.Filename,
				Percent:  percent,
			})
		}
	}
	ref, err := h.attachments.UploadAttachment(c.UserContext(), in, onProgress)
	if errors.Is(err, service.ErrStorageNotConfigured) {
		return httpx.Unavailable(c, "storage_not_configured", "Storage not configured")
	}
	if err != nil {
		return httpx.FromError(c, err)
	}

	slog.Info("attachment uploaded", "user_id", identity.UserID, "group_id", groupID, "key", ref.Key, "size", ref.Size)
	return c.Status(fiber.StatusCreated).JSON(ref)
}

// RefreshURL issues a fresh time-limited URL for a stored attachment.
func (h *AttachmentHandler) RefreshURL(c *fiber.Ctx) error {
	if _, err := httpx.LocalIdentity(c); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	if !h.attachments.Available() {
		return httpx.Unavailable(c, "storage_not_configured", "Storage not configured")
	}

	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		return httpx.BadRequest(c, "missing_key", "key is required")
	}

	url, expiresAt, err := h.attachments.RefreshAccessURL(c.UserContext(), key)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"key": key, "url": url, "expires_at": expiresAt})
}
