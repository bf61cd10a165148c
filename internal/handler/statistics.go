package handler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) HandleLicenseStatistics(c *fiber.Ctx) error {
	stats, err := h.svc.Licenses.Statistics(c.UserContext())
	if err != nil {
		return h.adminError(c, err, "Statistics")
	}
	return c.JSON(stats)
}

func (h *Handler) HandleTrialStatistics(c *fiber.Ctx) error {
	stats, recent, err := h.svc.Trials.Stats(c.UserContext(), 10)
	if err != nil {
		return h.adminError(c, err, "Trial")
	}
	return c.JSON(fiber.Map{
		"statistics":   stats,
		"recentTrials": recent,
	})
}

// HandlePurgeTrials removes long-expired unconverted trials. ADMIN only.
func (h *Handler) HandlePurgeTrials(c *fiber.Ctx) error {
	deleted, err := h.svc.Trials.Purge(c.UserContext(), actor(c))
	if err != nil {
		return h.adminError(c, err, "Trial")
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
