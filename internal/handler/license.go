package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"license-activation-service/internal/model"
)

const dateLayout = "2006-01-02"

func (h *Handler) HandleCreateLicense(c *fiber.Ctx) error {
	var input model.LicenseInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	input.FullName = strings.TrimSpace(input.FullName)
	input.Email = strings.TrimSpace(input.Email)
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	license, emailQueued, err := h.svc.Licenses.Create(c.UserContext(), actor(c), input)
	if err != nil {
		return h.adminError(c, err, "License")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"license":     license,
		"emailQueued": emailQueued,
	})
}

func (h *Handler) HandleListLicenses(c *fiber.Ctx) error {
	filter := model.LicenseFilter{
		Name:       strings.TrimSpace(c.Query("name")),
		NationalID: strings.TrimSpace(c.Query("cinNumber")),
	}
	filter.Page, _ = strconv.Atoi(c.Query("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit", "10"))

	if status := c.Query("status"); status != "" {
		filter.Status = model.LicenseStatus(strings.ToUpper(status))
		if !filter.Status.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "status must be one of [ACTIVE EXPIRED REVOKED]",
			})
		}
	}
	if from := c.Query("createdFrom"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "createdFrom must be YYYY-MM-DD"})
		}
		filter.CreatedFrom = &t
	}
	if to := c.Query("createdTo"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "createdTo must be YYYY-MM-DD"})
		}
		// inclusive of the whole day
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.CreatedTo = &t
	}

	licenses, pagination, err := h.svc.Licenses.List(c.UserContext(), filter)
	if err != nil {
		return h.adminError(c, err, "License")
	}

	return c.JSON(fiber.Map{
		"licenses":   licenses,
		"pagination": pagination,
	})
}

func (h *Handler) HandleGetLicense(c *fiber.Ctx) error {
	detail, err := h.svc.Licenses.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.adminError(c, err, "License")
	}
	return c.JSON(fiber.Map{"license": detail})
}

func (h *Handler) HandleUpdateLicense(c *fiber.Ctx) error {
	var patch model.LicensePatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input data",
		})
	}
	if patch.Status != nil {
		upper := strings.ToUpper(*patch.Status)
		patch.Status = &upper
	}
	if err := h.validate.Struct(patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": validationDetails(err),
		})
	}

	license, err := h.svc.Licenses.Update(c.UserContext(), actor(c), c.Params("id"), patch)
	if err != nil {
		return h.adminError(c, err, "License")
	}
	return c.JSON(fiber.Map{"license": license})
}

func (h *Handler) HandleDeleteLicense(c *fiber.Ctx) error {
	if err := h.svc.Licenses.Delete(c.UserContext(), actor(c), c.Params("id")); err != nil {
		return h.adminError(c, err, "License")
	}
	return c.JSON(fiber.Map{"message": "License deleted successfully"})
}
