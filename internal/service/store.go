package service

import (
	"context"
	"time"

	"license-activation-service/internal/model"
)

// LicenseStore persists licenses. Lookups return model.ErrNotFound when absent.
type LicenseStore interface {
	FindLicenseByKey(ctx context.Context, key string) (*model.License, error)
	FindLicenseByID(ctx context.Context, id string) (*model.License, error)
	CreateLicense(ctx context.Context, license *model.License) error
	UpdateLicense(ctx context.Context, license *model.License) error
	ExpireLicense(ctx context.Context, id string, now time.Time) error
	DeleteLicense(ctx context.Context, id string) error
	ListLicenses(ctx context.Context, filter model.LicenseFilter) ([]model.LicenseSummary, int64, error)
	LicenseStatistics(ctx context.Context) (model.LicenseStatistics, error)
}

type DeviceStore interface {
	CountDevices(ctx context.Context, licenseID string) (int64, error)
	FindDevice(ctx context.Context, licenseID, deviceID string) (*model.Device, error)
	ListDevices(ctx context.Context, licenseID string) ([]model.Device, error)
	BindDevice(ctx context.Context, d *model.Device, maxDevices int) (model.BindResult, error)
	TouchDevice(ctx context.Context, licenseID, deviceID, ip string, now time.Time) error
}

type AuditStore interface {
	AppendActivationLog(ctx context.Context, entry *model.ActivationLog) error
	ListActivationLogs(ctx context.Context, licenseID string, limit int) ([]model.ActivationLog, error)
	RecentActivations(ctx context.Context, limit int) ([]model.RecentActivation, error)
}

type TrialStore interface {
	FindOrCreateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, bool, error)
	UpdateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, error)
	TrialStatistics(ctx context.Context, now time.Time) (model.TrialStatistics, error)
	RecentTrials(ctx context.Context, limit int) ([]model.TrialUsage, error)
	PurgeTrials(ctx context.Context, expiredBefore time.Time) (int64, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error
}

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, int64, error)
	CountUsersByRole(ctx context.Context, role model.Role) (int64, error)
	DeleteUser(ctx context.Context, id string) error
	AppendLoginLog(ctx context.Context, entry *model.LoginLog) error
	ListLoginLogs(ctx context.Context, userID string, page, pageSize int) ([]model.LoginLog, int64, error)
}

type OperationLogStore interface {
	AppendOperationLog(ctx context.Context, entry *model.OperationLog) error
	ListOperationLogs(ctx context.Context, userID string, page, pageSize int) ([]model.OperationLog, int64, error)
}

// Gateway is the full persistence surface. Both the gorm and the mongo
// stores satisfy it.
type Gateway interface {
	LicenseStore
	DeviceStore
	AuditStore
	TrialStore
	SettingsStore
	UserStore
	OperationLogStore
	Ping(ctx context.Context) error
}
