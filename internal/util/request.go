package util

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mssola/useragent"

	"license-activation-service/internal/model"
)

// ApplyProxyConfig makes c.IP() read header only when the socket peer is one
// of trusted. With no trusted proxies the header is ignored and c.IP() is the
// socket address.
func ApplyProxyConfig(cfg *fiber.Config, header string, trusted []string) {
	cfg.EnableTrustedProxyCheck = true
	cfg.EnableIPValidation = true
	cfg.TrustedProxies = trusted
	if len(trusted) > 0 {
		cfg.ProxyHeader = header
	}
}

// DeviceInfo derives the {type, name} pair from a User-Agent header.
func DeviceInfo(userAgent string) model.DeviceMeta {
	if strings.TrimSpace(userAgent) == "" {
		return model.DeviceMeta{Type: "unknown", Name: "Unknown Device"}
	}

	ua := useragent.New(userAgent)

	deviceType := "desktop"
	switch {
	case ua.Bot():
		deviceType = "bot"
	case isTablet(userAgent):
		deviceType = "tablet"
	case ua.Mobile():
		deviceType = "mobile"
	}

	os := ua.OSInfo().Name
	browser, _ := ua.Browser()

	var parts []string
	if os != "" {
		parts = append(parts, os)
	}
	if browser != "" {
		parts = append(parts, browser)
	}
	name := strings.Join(parts, " ")
	if name == "" {
		name = "Unknown Device"
	}

	return model.DeviceMeta{Type: deviceType, Name: name}
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	return strings.Contains(lower, "ipad") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")) ||
		strings.Contains(lower, "tablet")
}
