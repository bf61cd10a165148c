package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/model"
)

var admin = Actor{UserID: "admin-1", Role: model.RoleAdmin}

func licenseInput() model.LicenseInput {
	return model.LicenseInput{
		FullName:    "Jane Holder",
		NationalID:  "AB12345",
		Email:       "jane@example.com",
		PhoneNumber: "0600000000",
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", "2026-01-02T15:04:05Z", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), false},
		{"date", "2026-01-02", time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC), false},
		{"garbage", "next tuesday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpiry(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestLicenseService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	license, emailQueued, err := f.svc.Licenses.Create(ctx, admin, licenseInput())
	require.NoError(t, err)
	assert.True(t, emailQueued)
	assert.Regexp(t, `^VM(-[0-9A-F]{4}){4}$`, license.LicenseKey)
	assert.Equal(t, 1, license.MaxDevices)
	assert.Equal(t, model.LicenseStatusActive, license.Status)
	assert.True(t, license.ExpiresAt.Equal(baseTime.AddDate(0, 0, 365)))

	f.wait(t)
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, []string{license.LicenseKey}, f.mirror.synced)

	stored, err := f.store.FindLicenseByKey(ctx, license.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, license.ID, stored.ID)

	ops, _, err := f.svc.OperationLogs.GetOperationLogs(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "create", ops[0].Action)
	assert.Contains(t, ops[0].Details, license.LicenseKey)
}

func TestLicenseService_CreateOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noEmail := false
	in := licenseInput()
	in.MaxDevices = 4
	in.ExpiresAt = "2026-06-30"
	in.SendEmail = &noEmail

	license, emailQueued, err := f.svc.Licenses.Create(ctx, admin, in)
	require.NoError(t, err)
	assert.False(t, emailQueued)
	assert.Equal(t, 4, license.MaxDevices)
	assert.Equal(t, 2026, license.ExpiresAt.Year())

	in.ExpiresAt = "2020-01-01"
	_, _, err = f.svc.Licenses.Create(ctx, admin, in)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	f.wait(t)
	assert.Zero(t, f.notifier.count())
}

func TestLicenseService_CreateKeyCollision(t *testing.T) {
	f := newFixture(t, withCodec(licensekey.New("VM").WithRand(repeatReader(0xAB))))
	ctx := context.Background()

	first, _, err := f.svc.Licenses.Create(ctx, admin, licenseInput())
	require.NoError(t, err)
	assert.Equal(t, "VM-ABAB-ABAB-ABAB-ABAB", first.LicenseKey)

	_, _, err = f.svc.Licenses.Create(ctx, admin, licenseInput())
	assert.ErrorIs(t, err, ErrKeyExhausted)
	f.wait(t)
}

func TestLicenseService_GetListUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	license, _, err := f.svc.Licenses.Create(ctx, admin, licenseInput())
	require.NoError(t, err)

	_, err = f.svc.Activation.Activate(ctx, request(license.LicenseKey, "device-0001"))
	require.NoError(t, err)

	detail, err := f.svc.Licenses.Get(ctx, license.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Devices, 1)
	assert.Len(t, detail.ActivationLogs, 1)

	items, page, err := f.svc.Licenses.List(ctx, model.LicenseFilter{Name: "Jane"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].DeviceCount)
	assert.Equal(t, 1, page.TotalPages)

	maxDevices := 3
	status := string(model.LicenseStatusRevoked)
	updated, err := f.svc.Licenses.Update(ctx, admin, license.ID, model.LicensePatch{MaxDevices: &maxDevices, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MaxDevices)
	assert.Equal(t, model.LicenseStatusRevoked, updated.Status)

	bad := "2020-13-45"
	_, err = f.svc.Licenses.Update(ctx, admin, license.ID, model.LicensePatch{ExpiresAt: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	stats, err := f.svc.Licenses.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RevokedLicenses)
	assert.Equal(t, int64(1), stats.TotalDevices)
	require.Len(t, stats.RecentActivations, 1)

	require.NoError(t, f.svc.Licenses.Delete(ctx, admin, license.ID))
	_, err = f.svc.Licenses.Get(ctx, license.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.svc.Licenses.Delete(ctx, admin, license.ID), model.ErrNotFound)

	f.wait(t)
	assert.Equal(t, []string{license.LicenseKey}, f.mirror.removed)
}

func TestLicenseService_ListExpiresLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	license := f.license(t, 1, day)

	f.clock.Advance(2 * day)
	items, _, err := f.svc.Licenses.List(ctx, model.LicenseFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.LicenseStatusExpired, items[0].Status)

	stored, err := f.store.FindLicenseByID(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseStatusExpired, stored.Status)
}

func TestSettingsService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current, err := f.svc.Settings.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, current.TrialPeriodDays)

	require.NoError(t, f.svc.Settings.EnsureDefaults(ctx))
	stored, err := f.store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 365, stored.DefaultLicenseDurationDays)

	disabled := false
	devices := 2
	updated, err := f.svc.Settings.Update(ctx, admin, model.SettingsPatch{EmailNotificationsEnabled: &disabled, DefaultMaxDevices: &devices})
	require.NoError(t, err)
	assert.False(t, updated.EmailNotificationsEnabled)
	assert.Equal(t, 2, updated.DefaultMaxDevices)
	assert.Equal(t, 7, updated.TrialPeriodDays)

	license, emailQueued, err := f.svc.Licenses.Create(ctx, admin, licenseInput())
	require.NoError(t, err)
	assert.False(t, emailQueued)
	assert.Equal(t, 2, license.MaxDevices)
	f.wait(t)
}

func TestSettingsServiceSendTestEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Settings.SendTestEmail(ctx, admin, "ops@example.com"))
	assert.Equal(t, []string{"ops@example.com"}, f.notifier.tests)

	f.notifier.testErr = errors.New("535 authentication failed")
	err := f.svc.Settings.SendTestEmail(ctx, admin, "ops@example.com")
	assert.ErrorIs(t, err, ErrEmailDelivery)

	f.notifier.testErr = ErrMailerNotConfigured
	err = f.svc.Settings.SendTestEmail(ctx, admin, "ops@example.com")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrEmailDelivery)

	disabled := false
	_, err = f.svc.Settings.Update(ctx, admin, model.SettingsPatch{EmailNotificationsEnabled: &disabled})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Settings.SendTestEmail(ctx, admin, "ops@example.com"), ErrEmailDisabled)
}
