package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"license-activation-service/internal/middleware"
	"license-activation-service/internal/model"
	"license-activation-service/internal/service"
	"license-activation-service/internal/util"
)

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) HandleUserLogin(c *fiber.Ctx) error {
	var input LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	token, user, err := h.svc.Users.Login(c.UserContext(), input.Email, input.Password,
		c.IP(), c.Get(fiber.HeaderUserAgent))
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}
	if err != nil {
		return h.adminError(c, err, "User")
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *Handler) HandleUserInfo(c *fiber.Ctx) error {
	user, err := h.svc.Users.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) HandleChangePassword(c *fiber.Ctx) error {
	var input ChangePasswordInput
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

	err := h.svc.Users.ChangePassword(c.UserContext(), middleware.UserID(c), input.OldPassword, input.NewPassword)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Current password is incorrect",
		})
	}
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

func (h *Handler) HandleGetLoginLogs(c *fiber.Ctx) error {
	page, pageSize := paging(c)
	logs, total, err := h.svc.Users.LoginLogs(c.UserContext(), middleware.UserID(c), page, pageSize)
	if err != nil {
		return h.adminError(c, err, "Login log")
	}
	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}

type validateTokenInput struct {
	Token string `json:"token" validate:"required"`
}

// HandleValidateToken reports whether a token is valid and still belongs to an account.
func (h *Handler) HandleValidateToken(c *fiber.Ctx) error {
	var input validateTokenInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid": false,
			"error": "Invalid input data",
		})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid": false,
			"error": "Token is required",
		})
	}

	user, err := h.svc.Users.ValidateToken(c.UserContext(), input.Token)
	if errors.Is(err, util.ErrInvalidToken) {
		return c.JSON(fiber.Map{
			"valid": false,
			"error": "Invalid or expired token",
		})
	}
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{
		"valid": true,
		"user":  user,
	})
}

func (h *Handler) HandleCreateUser(c *fiber.Ctx) error {
	var input model.UserInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	input.Role = model.Role(strings.ToUpper(string(input.Role)))
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	user, err := h.svc.Users.Create(c.UserContext(), actor(c), input)
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

func (h *Handler) HandleSearchUsers(c *fiber.Ctx) error {
	page, pageSize := paging(c)
	filter := model.UserFilter{
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Role:     model.Role(strings.ToUpper(c.Query("role"))),
		Page:     page,
		PageSize: pageSize,
	}
	if filter.Role != "" && filter.Role != model.RoleAdmin && filter.Role != model.RoleSupport {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "role must be one of [ADMIN SUPPORT]",
		})
	}

	users, total, err := h.svc.Users.List(c.UserContext(), filter)
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{
		"users": users,
		"total": total,
		"page":  page,
	})
}

func (h *Handler) HandleGetUser(c *fiber.Ctx) error {
	user, err := h.svc.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) HandleUpdateUser(c *fiber.Ctx) error {
	var patch model.UserPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	if patch.Role != nil {
		role := model.Role(strings.ToUpper(string(*patch.Role)))
		patch.Role = &role
	}
	if err := h.validate.Struct(patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	user, err := h.svc.Users.Update(c.UserContext(), actor(c), c.Params("id"), patch)
	if err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) HandleDeleteUser(c *fiber.Ctx) error {
	if err := h.svc.Users.Delete(c.UserContext(), actor(c), c.Params("id")); err != nil {
		return h.adminError(c, err, "User")
	}
	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}
