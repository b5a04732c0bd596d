package httpx

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
)

// IdentityKey is the fiber local holding the caller's models.Identity.
const IdentityKey = "identity"

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func Unavailable(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, code, message)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindPayloadTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case apperr.KindUnsupportedType:
		return fiber.StatusUnsupportedMediaType
	case apperr.KindPermission:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusBadGateway
}

// FromError writes the envelope for err. Transport failures are logged
// and their details are not sent to the client.
func FromError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindTransport {
		slog.Error("request failed", "path", c.Path(), "request_id", requestID(c), "error", err)
	}
	return Error(c, StatusFor(kind), string(kind), apperr.Message(err))
}

// ErrorHandler renders errors returned from handlers. Fiber errors keep
// their own status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Error(c, fe.Code, "", fe.Message)
	}
	return FromError(c, err)
}

func LocalIdentity(c *fiber.Ctx) (models.Identity, error) {
	v := c.Locals(IdentityKey)
	if v == nil {
		return models.Identity{}, fmt.Errorf("missing local %s", IdentityKey)
	}
	id, ok := v.(models.Identity)
	if !ok {
		return models.Identity{}, fmt.Errorf("invalid local %s", IdentityKey)
	}
	return id, nil
}
