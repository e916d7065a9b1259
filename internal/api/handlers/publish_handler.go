package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"postqueue/internal/publisher"
	"postqueue/internal/service"
	"postqueue/internal/transfer"
)

type PublishHandler struct {
	s service.PublishService
}

func NewPublishHandler(service service.PublishService) *PublishHandler {
	return &PublishHandler{s: service}
}

// PublishNow posts immediately, skipping the scheduler. The outcome is
// returned either way; the status code reflects what went wrong.
func (h *PublishHandler) PublishNow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pn transfer.PublishNow
	if err := c.BodyParser(&pn); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	outcome, err := h.s.PublishNow(c.Context(), userID, pn.PostID, pn.Platform)
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(outcome)
	}
	if outcome == nil {
		// The publish never ran or the attempt could not be recorded.
		status := fiber.StatusInternalServerError
		if publisher.KindOf(err) == publisher.KindNotFound {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusBadGateway
	switch publisher.KindOf(err) {
	case publisher.KindCredentialsMissing, publisher.KindPermissionDenied:
		status = fiber.StatusUnauthorized
	case publisher.KindRateLimited:
		status = fiber.StatusTooManyRequests
	case publisher.KindUnsupportedPlatform:
		status = fiber.StatusBadRequest
	case publisher.KindNotFound:
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(outcome)
}
