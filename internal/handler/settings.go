package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"license-activation-service/internal/model"
	"license-activation-service/internal/service"
)

func (h *Handler) HandleGetSettings(c *fiber.Ctx) error {
	settings, err := h.svc.Settings.Current(c.UserContext())
	if err != nil {
		return h.adminError(c, err, "Settings")
	}
	return c.JSON(fiber.Map{"settings": settings})
}

func (h *Handler) HandleUpdateSettings(c *fiber.Ctx) error {
	var patch model.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	if err := h.validate.Struct(patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	settings, err := h.svc.Settings.Update(c.UserContext(), actor(c), patch)
	if err != nil {
		return h.adminError(c, err, "Settings")
	}
	return c.JSON(fiber.Map{"settings": settings})
}

type testEmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) HandleTestEmail(c *fiber.Ctx) error {
	var input testEmailInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	err := h.svc.Settings.SendTestEmail(c.UserContext(), actor(c), input.Email)
	if errors.Is(err, service.ErrEmailDelivery) {
		h.logger.Warn("test email failed", zap.String("to", input.Email), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to send test email",
		})
	}
	if err != nil {
		return h.adminError(c, err, "Settings")
	}
	return c.JSON(fiber.Map{"message": "Test email sent successfully"})
}
