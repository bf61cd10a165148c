package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"license-activation-service/internal/model"
	"license-activation-service/internal/service"
	"license-activation-service/internal/util"
)

type activateRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required,min=10,max=64"`
	DeviceID   string `json:"deviceId" validate:"required,min=8,max=255"`
	DeviceName string `json:"deviceName" validate:"omitempty,max=255"`
}

type trialRequest struct {
	DeviceID   string `json:"deviceId" validate:"required,min=8,max=255"`
	DeviceName string `json:"deviceName" validate:"omitempty,max=255"`
}

func deviceMeta(c *fiber.Ctx, name string) model.DeviceMeta {
	meta := util.DeviceInfo(c.Get(fiber.HeaderUserAgent))
	if name = strings.TrimSpace(name); name != "" {
		meta.Name = name
	}
	return meta
}

func (h *Handler) parseProtocol(c *fiber.Ctx, req *activateRequest) error {
	if err := c.BodyParser(req); err != nil {
		return err
	}
	req.LicenseKey = strings.TrimSpace(req.LicenseKey)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	return h.validate.Struct(req)
}

func (h *Handler) HandleActivate(c *fiber.Ctx) error {
	var req activateRequest
	if err := h.parseProtocol(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request",
			"details": validationDetails(err),
		})
	}

	outcome, err := h.svc.Activation.Activate(c.UserContext(), service.ProtocolRequest{
		LicenseKey: req.LicenseKey,
		DeviceID:   req.DeviceID,
		Meta:       deviceMeta(c, req.DeviceName),
		IP:         c.IP(),
	})
	if err != nil {
		h.logger.Error("activation failed", zap.String("deviceId", req.DeviceID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Internal server error",
		})
	}

	info := outcome.License
	switch outcome.Kind {
	case service.OutcomeActivated:
		return c.JSON(fiber.Map{
			"success":     true,
			"message":     "License activated successfully",
			"licenseInfo": info,
		})
	case service.OutcomeValid:
		return c.JSON(fiber.Map{
			"success":     true,
			"message":     "Device already activated",
			"licenseInfo": info,
		})
	case service.OutcomeInvalidKey:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid license key",
		})
	case service.OutcomeNotActive:
		if info.Status == model.LicenseStatusExpired {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success":     false,
				"error":       "License has expired",
				"expiryDate":  info.ExpiresAt,
				"licenseInfo": info,
			})
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":     false,
			"error":       "License is not active",
			"status":      info.Status,
			"licenseInfo": info,
		})
	case service.OutcomeMaxDevices:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":        false,
			"error":          "Maximum number of devices reached",
			"currentDevices": info.DeviceCount,
			"maxDevices":     info.MaxDevices,
			"licenseInfo":    info,
		})
	default:
		h.logger.Error("unexpected activation outcome", zap.String("kind", string(outcome.Kind)))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Internal server error",
		})
	}
}

// HandleCheck reports validity with 200 for every domain outcome.
func (h *Handler) HandleCheck(c *fiber.Ctx) error {
	var req activateRequest
	if err := h.parseProtocol(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid":   false,
			"error":   "Invalid request",
			"details": validationDetails(err),
		})
	}

	outcome, err := h.svc.Activation.Check(c.UserContext(), service.ProtocolRequest{
		LicenseKey: req.LicenseKey,
		DeviceID:   req.DeviceID,
		Meta:       deviceMeta(c, req.DeviceName),
		IP:         c.IP(),
	})
	if err != nil {
		h.logger.Error("license check failed", zap.String("deviceId", req.DeviceID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"valid": false,
			"error": "Internal server error",
		})
	}

	info := outcome.License
	switch outcome.Kind {
	case service.OutcomeValid:
		return c.JSON(fiber.Map{"valid": true, "licenseInfo": info})
	case service.OutcomeInvalidKey:
		return c.JSON(fiber.Map{"valid": false, "error": "Invalid license key"})
	case service.OutcomeNotActive:
		msg := "License is not active"
		if info.Status == model.LicenseStatusExpired {
			msg = "License has expired"
		}
		return c.JSON(fiber.Map{"valid": false, "error": msg, "licenseInfo": info})
	case service.OutcomeNotRegistered:
		return c.JSON(fiber.Map{
			"valid":       false,
			"error":       "Device not registered with this license",
			"licenseInfo": info,
		})
	default:
		h.logger.Error("unexpected check outcome", zap.String("kind", string(outcome.Kind)))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"valid": false,
			"error": "Internal server error",
		})
	}
}

func (h *Handler) HandleTrial(c *fiber.Ctx) error {
	var req trialRequest
	err := c.BodyParser(&req)
	if err == nil {
		req.DeviceID = strings.TrimSpace(req.DeviceID)
		err = h.validate.Struct(req)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid":   false,
			"error":   "Invalid request",
			"details": validationDetails(err),
		})
	}

	outcome, err := h.svc.Trials.Trial(c.UserContext(), service.TrialRequest{
		DeviceID: req.DeviceID,
		Meta:     deviceMeta(c, req.DeviceName),
		IP:       c.IP(),
	})
	if err != nil {
		h.logger.Error("trial failed", zap.String("deviceId", req.DeviceID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"valid": false,
			"error": "Internal server error",
		})
	}

	trial := outcome.Trial
	info := fiber.Map{
		"startedAt":     trial.TrialStartedAt,
		"expiresAt":     trial.TrialExpiresAt,
		"daysRemaining": outcome.DaysRemaining,
		"daysTotal":     trial.TrialPeriodDays,
		"usageCount":    trial.UsageCount,
	}

	switch outcome.Kind {
	case service.TrialStarted:
		return c.JSON(fiber.Map{
			"valid":        true,
			"trialExpired": false,
			"message":      "Trial started",
			"trialInfo":    info,
		})
	case service.TrialExpired:
		return c.JSON(fiber.Map{
			"valid":        false,
			"trialExpired": true,
			"error":        "Trial period has expired",
			"trialInfo":    info,
		})
	default:
		return c.JSON(fiber.Map{
			"valid":        true,
			"trialExpired": false,
			"trialInfo":    info,
		})
	}
}
