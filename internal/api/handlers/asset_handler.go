package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"postqueue/internal/service"
)

type AssetHandler struct {
	s *service.MediaService
}

func NewAssetHandler(service *service.MediaService) *AssetHandler {
	return &AssetHandler{s: service}
}

// UploadAsset stores one media file and returns the URL to reference from a
// post's content blocks.
func (h *AssetHandler) UploadAsset(c *fiber.Ctx) error {
	userID := GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	url, err := h.s.Upload(c.Context(), userID, fileHeader)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"url": url,
	})
}
