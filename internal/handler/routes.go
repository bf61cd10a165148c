package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"license-activation-service/internal/middleware"
	"license-activation-service/internal/model"
	"license-activation-service/internal/util"
)

type RouteConfig struct {
	Tokens *util.TokenManager
	// RateLimit guards the public client routes; nil disables it.
	RateLimit fiber.Handler
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

func (h *Handler) Register(app *fiber.App, cfg RouteConfig) {
	app.Get("/healthz", h.HandleHealth)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	// client protocol; the limiter is per route so it stays off /api/v1
	limited := func(next fiber.Handler) []fiber.Handler {
		if cfg.RateLimit == nil {
			return []fiber.Handler{next}
		}
		return []fiber.Handler{cfg.RateLimit, next}
	}
	app.Post("/api/activate", limited(h.HandleActivate)...)
	app.Post("/api/check", limited(h.HandleCheck)...)
	app.Post("/api/trial", limited(h.HandleTrial)...)

	api := app.Group("/api/v1")
	api.Post("/auth/login", h.HandleUserLogin)
	api.Post("/auth/validate", h.HandleValidateToken)

	auth := middleware.Auth(cfg.Tokens)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	users := api.Group("/users", auth)
	users.Get("/me", h.HandleUserInfo)
	users.Post("/change-password", h.HandleChangePassword)
	users.Get("/login-logs", h.HandleGetLoginLogs)
	users.Get("/", adminOnly, h.HandleSearchUsers)
	users.Post("/", adminOnly, h.HandleCreateUser)
	users.Get("/:id", adminOnly, h.HandleGetUser)
	users.Patch("/:id", adminOnly, h.HandleUpdateUser)
	users.Delete("/:id", adminOnly, h.HandleDeleteUser)

	licenses := api.Group("/licenses", auth)
	licenses.Get("/", h.HandleListLicenses)
	licenses.Post("/", h.HandleCreateLicense)
	licenses.Get("/:id", h.HandleGetLicense)
	licenses.Patch("/:id", h.HandleUpdateLicense)
	licenses.Delete("/:id", adminOnly, h.HandleDeleteLicense)

	api.Get("/statistics/licenses", auth, h.HandleLicenseStatistics)

	trials := api.Group("/trials", auth)
	trials.Get("/", h.HandleTrialStatistics)
	trials.Post("/purge", adminOnly, h.HandlePurgeTrials)

	api.Get("/settings", auth, h.HandleGetSettings)
	api.Put("/settings", auth, adminOnly, h.HandleUpdateSettings)
	api.Post("/settings/test-email", auth, adminOnly, h.HandleTestEmail)

	api.Get("/logs", auth, h.HandleGetLogs)
}
