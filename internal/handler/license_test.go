package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLicenseInput() map[string]any {
	return map[string]any{
		"fullName":    "Test User",
		"cinNumber":   "AB12345",
		"email":       "holder@example.com",
		"phoneNumber": "0612345678",
		"maxDevices":  2,
		"sendEmail":   false,
	}
}

func TestHandleCreateLicense(t *testing.T) {
	env := setupTestApp(t)
	token := env.adminToken(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/licenses", validLicenseInput(), token)
	require.Equal(t, http.StatusCreated, status, body)

	license := body["license"].(map[string]any)
	assert.True(t, strings.HasPrefix(license["licenseKey"].(string), "VM-"))
	assert.Equal(t, "ACTIVE", license["status"])
	assert.Equal(t, float64(2), license["maxDevices"])
	assert.Equal(t, false, body["emailQueued"])

	expiresAt, err := time.Parse(time.RFC3339, license["expiresAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 365), expiresAt, time.Hour)
}

func TestHandleCreateLicenseValidation(t *testing.T) {
	env := setupTestApp(t)
	token := env.adminToken(t)

	tests := []struct {
		name       string
		mutate     func(map[string]any)
		wantStatus int
	}{
		{"missing name", func(in map[string]any) { delete(in, "fullName") }, http.StatusBadRequest},
		{"bad email", func(in map[string]any) { in["email"] = "not-an-email" }, http.StatusBadRequest},
		{"too many devices", func(in map[string]any) { in["maxDevices"] = 11 }, http.StatusBadRequest},
		{"expiry in the past", func(in map[string]any) { in["expiresAt"] = "2001-01-01" }, http.StatusBadRequest},
		{"garbage expiry", func(in map[string]any) { in["expiresAt"] = "tomorrow" }, http.StatusBadRequest},
		{"explicit date", func(in map[string]any) { in["expiresAt"] = time.Now().AddDate(1, 0, 0).Format(dateLayout) }, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validLicenseInput()
			tt.mutate(in)
			status, body := env.do(t, http.MethodPost, "/api/v1/licenses", in, token)
			assert.Equal(t, tt.wantStatus, status, body)
		})
	}
}

func TestLicenseRoutesRequireAuth(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/licenses", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing authentication token", body["error"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/licenses", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLicenseLifecycleThroughAPI(t *testing.T) {
	env := setupTestApp(t)
	admin := env.adminToken(t)
	support := env.supportToken(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/licenses", validLicenseInput(), support)
	require.Equal(t, http.StatusCreated, status)
	created := body["license"].(map[string]any)
	id := created["id"].(string)
	key := created["licenseKey"].(string)

	status, _ = env.do(t, http.MethodPost, "/api/activate", map[string]any{
		"licenseKey": key,
		"deviceId":   "device-0001",
	}, "")
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/licenses/"+id, nil, support)
	require.Equal(t, http.StatusOK, status)
	detail := body["license"].(map[string]any)
	assert.Len(t, detail["devices"], 1)
	assert.Len(t, detail["activationLogs"], 1)

	status, body = env.do(t, http.MethodGet, "/api/v1/licenses?name=test&status=active", nil, support)
	require.Equal(t, http.StatusOK, status)
	list := body["licenses"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, float64(1), list[0].(map[string]any)["deviceCount"])
	assert.Equal(t, float64(1), body["pagination"].(map[string]any)["total"])

	status, body = env.do(t, http.MethodPatch, "/api/v1/licenses/"+id, map[string]any{
		"status":     "revoked",
		"maxDevices": 3,
	}, support)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "REVOKED", body["license"].(map[string]any)["status"])
	assert.Equal(t, float64(3), body["license"].(map[string]any)["maxDevices"])

	status, body = env.do(t, http.MethodPost, "/api/check", map[string]any{
		"licenseKey": key,
		"deviceId":   "device-0001",
	}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["valid"])

	status, _ = env.do(t, http.MethodPatch, "/api/v1/licenses/"+id, map[string]any{"status": "BOGUS"}, support)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/licenses/"+id, nil, support)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/licenses/"+id, nil, admin)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/licenses/"+id, nil, admin)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "License not found", body["error"])

	status, _ = env.do(t, http.MethodDelete, "/api/v1/licenses/"+id, nil, admin)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandleListLicensesFilters(t *testing.T) {
	env := setupTestApp(t)
	token := env.adminToken(t)
	env.license(t, 1, 24*time.Hour)
	env.license(t, 1, -24*time.Hour)

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 2},
		{"?limit=1", http.StatusOK, 1},
		{"?cinNumber=AB123", http.StatusOK, 2},
		{"?name=nobody", http.StatusOK, 0},
		{"?createdFrom=" + time.Now().UTC().Format(dateLayout), http.StatusOK, 2},
		{"?createdTo=2001-01-01", http.StatusOK, 0},
		{"?status=unknown", http.StatusBadRequest, 0},
		{"?createdFrom=yesterday", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := env.do(t, http.MethodGet, "/api/v1/licenses"+tt.query, nil, token)
			require.Equal(t, tt.wantStatus, status)
			if status == http.StatusOK {
				assert.Len(t, body["licenses"], tt.wantCount)
			}
		})
	}
}

func TestHandleLicenseStatistics(t *testing.T) {
	env := setupTestApp(t)
	token := env.adminToken(t)
	license := env.license(t, 2, 24*time.Hour)
	env.license(t, 1, 24*time.Hour)

	status, _ := env.do(t, http.MethodPost, "/api/activate", map[string]any{
		"licenseKey": license.LicenseKey,
		"deviceId":   "device-0001",
	}, "")
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/api/v1/statistics/licenses", nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["totalLicenses"])
	assert.Equal(t, float64(2), body["activeLicenses"])
	assert.Equal(t, float64(1), body["totalDevices"])
	recent := body["recentActivations"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, license.LicenseKey, recent[0].(map[string]any)["licenseKey"])
}
