package handlers

import (
	"github.com/gofiber/fiber/v2"
	"postqueue/internal/service"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userId := GetUserID(c)

	accounts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	userId := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userId, int64(accountId))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to remove social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
