package handler

import (
	"github.com/gofiber/fiber/v2"

	"license-activation-service/internal/middleware"
	"license-activation-service/internal/model"
)

// HandleGetLogs lists operator mutations. SUPPORT users see only their own.
func (h *Handler) HandleGetLogs(c *fiber.Ctx) error {
	page, pageSize := paging(c)

	var (
		logs  []model.OperationLog
		total int64
		err   error
	)
	if middleware.Role(c) == model.RoleAdmin {
		logs, total, err = h.svc.OperationLogs.GetOperationLogs(c.UserContext(), page, pageSize)
	} else {
		logs, total, err = h.svc.OperationLogs.GetUserOperationLogs(c.UserContext(), middleware.UserID(c), page, pageSize)
	}
	if err != nil {
		return h.adminError(c, err, "Operation log")
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}
