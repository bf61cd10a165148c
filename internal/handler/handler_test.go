package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"license-activation-service/internal/database"
	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/model"
	"license-activation-service/internal/service"
	"license-activation-service/internal/util"
)

const testPassword = "correct-horse"

type testEnv struct {
	app    *fiber.App
	store  *database.Store
	svc    *service.Services
	tokens *util.TokenManager
}

type envOption func(*RouteConfig)

func withRateLimit(h fiber.Handler) envOption {
	return func(cfg *RouteConfig) { cfg.RateLimit = h }
}

func setupTestApp(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := database.NewTestStore(t)
	tokens := util.NewTokenManager("handler-test-secret", time.Hour)
	registry := prometheus.NewRegistry()
	svc := service.New(service.Deps{
		Store:   store,
		Codec:   licensekey.New("VM"),
		Tokens:  tokens,
		Metrics: service.NewMetrics(registry),
		Defaults: model.Settings{
			DefaultLicenseDurationDays: 365,
			DefaultMaxDevices:          1,
			TrialPeriodDays:            7,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Wait(ctx)
	})

	cfg := RouteConfig{
		Tokens:  tokens,
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	New(svc, store, nil).Register(app, cfg)

	return &testEnv{app: app, store: store, svc: svc, tokens: tokens}
}

func (e *testEnv) user(t *testing.T, email string, role model.Role) (*model.User, string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &model.User{
		ID:        model.NewID(),
		Name:      "Operator",
		Email:     email,
		Password:  string(hashed),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))

	token, err := e.tokens.GenerateToken(user)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	_, token := e.user(t, "admin@example.com", model.RoleAdmin)
	return token
}

func (e *testEnv) supportToken(t *testing.T) string {
	t.Helper()
	_, token := e.user(t, "support@example.com", model.RoleSupport)
	return token
}

func (e *testEnv) license(t *testing.T, maxDevices int, expiresIn time.Duration) *model.License {
	t.Helper()
	now := time.Now().UTC()
	license := &model.License{
		ID:          model.NewID(),
		LicenseKey:  "VM-" + model.NewID()[:4] + "-TEST-KEYS-0001",
		FullName:    "Test User",
		NationalID:  "AB12345",
		Email:       "holder@example.com",
		PhoneNumber: "0612345678",
		MaxDevices:  maxDevices,
		Status:      model.LicenseStatusActive,
		ExpiresAt:   now.Add(expiresIn),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.store.CreateLicense(context.Background(), license))
	return license
}

// do sends a JSON request and decodes the JSON response body.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}
