package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"license-activation-service/internal/model"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createLicense(t *testing.T, store *Store, key string, maxDevices int, status model.LicenseStatus) *model.License {
	t.Helper()
	license := &model.License{
		ID:          model.NewID(),
		LicenseKey:  key,
		FullName:    "Jane Holder",
		NationalID:  "AB12345",
		Email:       "jane@example.com",
		PhoneNumber: "0600000000",
		MaxDevices:  maxDevices,
		Status:      status,
		ExpiresAt:   testNow.AddDate(0, 0, 30),
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	require.NoError(t, store.CreateLicense(context.Background(), license))
	return license
}

func newDevice(licenseID, deviceID string) *model.Device {
	return &model.Device{
		ID:          model.NewID(),
		DeviceID:    deviceID,
		LicenseID:   licenseID,
		DeviceName:  "Windows Chrome",
		DeviceType:  "desktop",
		FirstSeenAt: testNow,
		LastSeenAt:  testNow,
		IPAddress:   "10.0.0.1",
	}
}

func TestCreateLicense_DuplicateKey(t *testing.T) {
	store := NewTestStore(t)
	createLicense(t, store, "VM-AAAA-BBBB-CCCC-DDDD", 1, model.LicenseStatusActive)

	dup := &model.License{ID: model.NewID(), LicenseKey: "VM-AAAA-BBBB-CCCC-DDDD", FullName: "x", MaxDevices: 1, Status: model.LicenseStatusActive, ExpiresAt: testNow}
	err := store.CreateLicense(context.Background(), dup)
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestFindLicense_NotFound(t *testing.T) {
	store := NewTestStore(t)

	_, err := store.FindLicenseByKey(context.Background(), "VM-0000-0000-0000-0000")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.FindLicenseByID(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBindDevice(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-1111-2222-3333-4444", 2, model.LicenseStatusActive)

	tests := []struct {
		name      string
		deviceID  string
		outcome   model.BindOutcome
		wantCount int64
	}{
		{"first device binds", "device-0001", model.BindBound, 1},
		{"same device is already bound", "device-0001", model.BindAlreadyBound, 1},
		{"second device binds", "device-0002", model.BindBound, 2},
		{"third device is rejected", "device-0003", model.BindRejected, 2},
		{"bound device still accepted at capacity", "device-0002", model.BindAlreadyBound, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.BindDevice(ctx, newDevice(license.ID, tt.deviceID), license.MaxDevices)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.wantCount, res.DeviceCount)
			assert.Equal(t, 2, res.MaxDevices)
			if tt.outcome == model.BindRejected {
				assert.Nil(t, res.Device)
			} else {
				require.NotNil(t, res.Device)
				assert.Equal(t, tt.deviceID, res.Device.DeviceID)
			}
		})
	}
}

func TestBindDevice_AlreadyBoundRefreshesLastSeen(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-1111-2222-3333-5555", 1, model.LicenseStatusActive)

	_, err := store.BindDevice(ctx, newDevice(license.ID, "device-0001"), 1)
	require.NoError(t, err)

	again := newDevice(license.ID, "device-0001")
	again.LastSeenAt = testNow.Add(time.Hour)
	again.IPAddress = "10.0.0.9"
	res, err := store.BindDevice(ctx, again, 1)
	require.NoError(t, err)
	assert.Equal(t, model.BindAlreadyBound, res.Outcome)

	stored, err := store.FindDevice(ctx, license.ID, "device-0001")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", stored.IPAddress)
	assert.True(t, stored.LastSeenAt.Equal(testNow.Add(time.Hour)))
	assert.True(t, stored.FirstSeenAt.Equal(testNow))
}

func TestBindDevice_ConcurrentNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-9999-8888-7777-6666", 3, model.LicenseStatusActive)

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[model.BindOutcome]int{}
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.BindDevice(ctx, newDevice(license.ID, fmt.Sprintf("device-%04d", i)), license.MaxDevices)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, outcomes[model.BindBound])
	assert.Equal(t, attempts-3, outcomes[model.BindRejected])

	count, err := store.CountDevices(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestTouchDevice(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-ABCD-0000-0000-0001", 1, model.LicenseStatusActive)

	err := store.TouchDevice(ctx, license.ID, "device-0001", "1.1.1.1", testNow)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.BindDevice(ctx, newDevice(license.ID, "device-0001"), 1)
	require.NoError(t, err)
	require.NoError(t, store.TouchDevice(ctx, license.ID, "device-0001", "1.1.1.1", testNow.Add(time.Minute)))

	d, err := store.FindDevice(ctx, license.ID, "device-0001")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", d.IPAddress)
}

func TestExpireLicense_OnlyFromActive(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	active := createLicense(t, store, "VM-EXPI-RE00-0000-0001", 1, model.LicenseStatusActive)
	revoked := createLicense(t, store, "VM-EXPI-RE00-0000-0002", 1, model.LicenseStatusRevoked)

	require.NoError(t, store.ExpireLicense(ctx, active.ID, testNow))
	require.NoError(t, store.ExpireLicense(ctx, revoked.ID, testNow))

	got, err := store.FindLicenseByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseStatusExpired, got.Status)

	got, err = store.FindLicenseByID(ctx, revoked.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseStatusRevoked, got.Status)
}

func TestUpdateLicense(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-UPDA-TE00-0000-0001", 1, model.LicenseStatusActive)

	license.MaxDevices = 5
	license.Status = model.LicenseStatusRevoked
	require.NoError(t, store.UpdateLicense(ctx, license))

	got, err := store.FindLicenseByID(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxDevices)
	assert.Equal(t, model.LicenseStatusRevoked, got.Status)

	missing := *license
	missing.ID = "missing"
	assert.ErrorIs(t, store.UpdateLicense(ctx, &missing), model.ErrNotFound)
}

func TestDeleteLicense_Cascades(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	license := createLicense(t, store, "VM-DELE-TE00-0000-0001", 2, model.LicenseStatusActive)

	_, err := store.BindDevice(ctx, newDevice(license.ID, "device-0001"), 2)
	require.NoError(t, err)
	require.NoError(t, store.AppendActivationLog(ctx, &model.ActivationLog{
		ID: model.NewID(), LicenseID: license.ID, DeviceID: "device-0001", Action: model.LogActionActivate, Timestamp: testNow, Success: true,
	}))

	require.NoError(t, store.DeleteLicense(ctx, license.ID))

	_, err = store.FindLicenseByID(ctx, license.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	count, err := store.CountDevices(ctx, license.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	logs, err := store.CountActivationLogs(ctx, license.ID)
	require.NoError(t, err)
	assert.Zero(t, logs)

	assert.ErrorIs(t, store.DeleteLicense(ctx, license.ID), model.ErrNotFound)
}

func TestListLicenses(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	first := createLicense(t, store, "VM-LIST-0000-0000-0001", 3, model.LicenseStatusActive)
	second := createLicense(t, store, "VM-LIST-0000-0000-0002", 1, model.LicenseStatusRevoked)
	second.FullName = "Omar Support"
	require.NoError(t, store.UpdateLicense(ctx, second))

	_, err := store.BindDevice(ctx, newDevice(first.ID, "device-0001"), 3)
	require.NoError(t, err)
	_, err = store.BindDevice(ctx, newDevice(first.ID, "device-0002"), 3)
	require.NoError(t, err)

	tests := []struct {
		name      string
		filter    model.LicenseFilter
		wantTotal int64
		wantKeys  []string
	}{
		{"no filter", model.LicenseFilter{}, 2, nil},
		{"by status", model.LicenseFilter{Status: model.LicenseStatusRevoked}, 1, []string{second.LicenseKey}},
		{"by name", model.LicenseFilter{Name: "jane"}, 1, []string{first.LicenseKey}},
		{"paged", model.LicenseFilter{Page: 2, Limit: 1}, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := store.ListLicenses(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			if tt.wantKeys != nil {
				require.Len(t, items, len(tt.wantKeys))
				for i, key := range tt.wantKeys {
					assert.Equal(t, key, items[i].LicenseKey)
				}
			}
			for _, item := range items {
				if item.ID == first.ID {
					assert.Equal(t, int64(2), item.DeviceCount)
				}
			}
		})
	}
}

func TestLicenseStatistics(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	a := createLicense(t, store, "VM-STAT-0000-0000-0001", 2, model.LicenseStatusActive)
	createLicense(t, store, "VM-STAT-0000-0000-0002", 2, model.LicenseStatusExpired)
	createLicense(t, store, "VM-STAT-0000-0000-0003", 2, model.LicenseStatusRevoked)
	_, err := store.BindDevice(ctx, newDevice(a.ID, "device-0001"), 2)
	require.NoError(t, err)

	require.NoError(t, store.AppendActivationLog(ctx, &model.ActivationLog{
		ID: model.NewID(), LicenseID: a.ID, DeviceID: "device-0001", Action: model.LogActionActivate, Timestamp: testNow, Success: true,
	}))
	require.NoError(t, store.AppendActivationLog(ctx, &model.ActivationLog{
		ID: model.NewID(), LicenseID: model.UnknownLicenseID, DeviceID: "device-0009", Action: model.LogActionActivate, Timestamp: testNow, Success: false,
	}))

	stats, err := store.LicenseStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalLicenses)
	assert.Equal(t, int64(1), stats.ActiveLicenses)
	assert.Equal(t, int64(1), stats.ExpiredLicenses)
	assert.Equal(t, int64(1), stats.RevokedLicenses)
	assert.Equal(t, int64(1), stats.TotalDevices)

	recent, err := store.RecentActivations(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, a.LicenseKey, recent[0].LicenseKey)
	assert.Equal(t, "device-0001", recent[0].DeviceID)
}

func TestTrials(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	visit := model.TrialVisit{
		DeviceID:   "trial-device-1",
		Meta:       model.DeviceMeta{Type: "mobile", Name: "Android Chrome"},
		IP:         "10.0.0.1",
		Now:        testNow,
		PeriodDays: 7,
	}

	trial, created, err := store.FindOrCreateTrial(ctx, visit)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, trial.UsageCount)
	assert.True(t, trial.TrialExpiresAt.Equal(testNow.AddDate(0, 0, 7)))

	later := visit
	later.Now = testNow.Add(48 * time.Hour)
	later.IP = "10.0.0.2"
	later.PeriodDays = 30

	trial, created, err = store.FindOrCreateTrial(ctx, later)
	require.NoError(t, err)
	assert.False(t, created)

	trial, err = store.UpdateTrial(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 2, trial.UsageCount)
	assert.Equal(t, "10.0.0.2", trial.IPAddress)
	assert.Equal(t, 7, trial.TrialPeriodDays)
	assert.True(t, trial.TrialExpiresAt.Equal(testNow.AddDate(0, 0, 7)))

	_, err = store.UpdateTrial(ctx, model.TrialVisit{DeviceID: "nobody", Now: testNow})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTrialStatisticsAndPurge(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	visit := func(id string, at time.Time) {
		_, _, err := store.FindOrCreateTrial(ctx, model.TrialVisit{DeviceID: id, Now: at, PeriodDays: 7})
		require.NoError(t, err)
	}
	visit("fresh-device", testNow)
	visit("stale-device", testNow.AddDate(0, 0, -200))
	visit("recent-expired", testNow.AddDate(0, 0, -10))

	stats, err := store.TrialStatistics(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveTrials)
	assert.Equal(t, int64(2), stats.ExpiredTrials)
	assert.Equal(t, int64(3), stats.TotalTrials)
	assert.Equal(t, "0.00%", stats.ConversionRate)

	purged, err := store.PurgeTrials(ctx, testNow.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	recent, err := store.RecentTrials(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "fresh-device", recent[0].DeviceID)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	_, err := store.GetSettings(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	settings := &model.Settings{DefaultLicenseDurationDays: 365, DefaultMaxDevices: 1, TrialPeriodDays: 7, LastUpdated: testNow}
	require.NoError(t, store.SaveSettings(ctx, settings))

	settings.TrialPeriodDays = 14
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, got.TrialPeriodDays)
	assert.Equal(t, model.SettingsID, got.ID)
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)
	seed := AdminSeed{Name: "Admin", Email: "Admin@Example.com", Password: "secret"}

	require.NoError(t, store.SeedAdmin(ctx, seed, zap.NewNop()))
	require.NoError(t, store.SeedAdmin(ctx, seed, zap.NewNop()))

	user, err := store.FindUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
	assert.NotEqual(t, "secret", user.Password)

	var count int64
	require.NoError(t, store.db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOperationAndLoginLogs(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendOperationLog(ctx, &model.OperationLog{
			ID: model.NewID(), UserID: "u1", Action: "update", Target: "license", CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.AppendOperationLog(ctx, &model.OperationLog{ID: model.NewID(), UserID: "u2", Action: "delete", CreatedAt: testNow}))

	logs, total, err := store.ListOperationLogs(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, logs, 2)

	_, total, err = store.ListOperationLogs(ctx, "u2", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	require.NoError(t, store.AppendLoginLog(ctx, &model.LoginLog{ID: model.NewID(), UserID: "u1", Status: "success", CreatedAt: testNow}))
	logins, total, err := store.ListLoginLogs(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "success", logins[0].Status)
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()
	store := NewTestStore(t)

	users := []*model.User{
		{ID: model.NewID(), Name: "Alice Admin", Email: "alice@example.com", Password: "x", Role: model.RoleAdmin, CreatedAt: testNow},
		{ID: model.NewID(), Name: "Bob Support", Email: "bob@example.com", Password: "x", Role: model.RoleSupport, CreatedAt: testNow.Add(time.Minute)},
		{ID: model.NewID(), Name: "Carol Support", Email: "carol@example.com", Password: "x", Role: model.RoleSupport, CreatedAt: testNow.Add(2 * time.Minute)},
	}
	for _, u := range users {
		require.NoError(t, store.CreateUser(ctx, u))
	}
	assert.ErrorIs(t, store.CreateUser(ctx, &model.User{ID: model.NewID(), Name: "Dup", Email: "bob@example.com", Password: "x", Role: model.RoleSupport}), model.ErrDuplicate)

	admins, err := store.CountUsersByRole(ctx, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	tests := []struct {
		name      string
		filter    model.UserFilter
		wantTotal int64
		wantFirst string
	}{
		{"all newest first", model.UserFilter{}, 3, "carol@example.com"},
		{"by role", model.UserFilter{Role: model.RoleSupport}, 2, "carol@example.com"},
		{"by keyword", model.UserFilter{Keyword: "alice"}, 1, "alice@example.com"},
		{"second page", model.UserFilter{Page: 2, PageSize: 2}, 3, "alice@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := store.ListUsers(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.wantFirst, got[0].Email)
		})
	}

	require.NoError(t, store.AppendLoginLog(ctx, &model.LoginLog{ID: model.NewID(), UserID: users[1].ID, Status: "success", CreatedAt: testNow}))
	require.NoError(t, store.DeleteUser(ctx, users[1].ID))
	_, remaining, err := store.ListLoginLogs(ctx, users[1].ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.ErrorIs(t, store.DeleteUser(ctx, users[1].ID), model.ErrNotFound)
}
