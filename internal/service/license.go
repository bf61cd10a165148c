package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/model"
)

const (
	keyGenerationAttempts = 3
	detailLogLimit        = 20
	recentActivityLimit   = 5
	backgroundTimeout     = time.Minute
)

// ErrKeyExhausted is returned when every generated key collided.
var ErrKeyExhausted = errors.New("could not generate a unique license key")

// LicenseService provisions and administers licenses.
type LicenseService struct {
	store      Gateway
	codec      *licensekey.Codec
	lifecycle  *Lifecycle
	settings   *SettingsService
	oplog      *OperationLogger
	notifier   Notifier
	mirror     LicenseMirror
	logger     *zap.Logger
	now        func() time.Time
	background *sync.WaitGroup
}

func NewLicenseService(deps Deps, lifecycle *Lifecycle, settings *SettingsService, oplog *OperationLogger, background *sync.WaitGroup) *LicenseService {
	return &LicenseService{
		store:      deps.Store,
		codec:      deps.Codec,
		lifecycle:  lifecycle,
		settings:   settings,
		oplog:      oplog,
		notifier:   deps.Notifier,
		mirror:     deps.Mirror,
		logger:     deps.Logger,
		now:        deps.Now,
		background: background,
	}
}

// ParseExpiry accepts RFC 3339 timestamps or bare dates (end of that day, UTC).
func ParseExpiry(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse("2006-01-02", value); err == nil {
		return d.Add(24*time.Hour - time.Second).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: expiresAt must be RFC 3339 or YYYY-MM-DD", model.ErrInvalidInput)
}

// Create provisions a license with a fresh key. emailQueued reports whether
// a holder notification was dispatched.
func (s *LicenseService) Create(ctx context.Context, actor Actor, in model.LicenseInput) (license *model.License, emailQueued bool, err error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	now := s.now()

	expiresAt := now.AddDate(0, 0, settings.DefaultLicenseDurationDays)
	if in.ExpiresAt != "" {
		if expiresAt, err = ParseExpiry(in.ExpiresAt); err != nil {
			return nil, false, err
		}
		if !expiresAt.After(now) {
			return nil, false, fmt.Errorf("%w: expiresAt must be in the future", model.ErrInvalidInput)
		}
	}

	maxDevices := in.MaxDevices
	if maxDevices == 0 {
		maxDevices = settings.DefaultMaxDevices
	}

	license = &model.License{
		ID:          model.NewID(),
		FullName:    strings.TrimSpace(in.FullName),
		NationalID:  strings.TrimSpace(in.NationalID),
		Email:       strings.TrimSpace(in.Email),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		MaxDevices:  maxDevices,
		Status:      model.LicenseStatusActive,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insertWithFreshKey(ctx, license); err != nil {
		return nil, false, err
	}

	s.oplog.record(ctx, actor, "create", "license", license.ID, map[string]any{
		"licenseKey": license.LicenseKey, "fullName": license.FullName, "maxDevices": license.MaxDevices,
	})

	snapshot := *license
	s.dispatch(ctx, "sync license to sheet", func(ctx context.Context) error {
		return s.mirror.SyncLicense(ctx, snapshot)
	})

	wantEmail := in.SendEmail == nil || *in.SendEmail
	if settings.EmailNotificationsEnabled && wantEmail && license.Email != "" {
		s.dispatch(ctx, "send license email", func(ctx context.Context) error {
			return s.notifier.NotifyLicenseCreated(ctx, snapshot)
		})
		emailQueued = true
	}
	return license, emailQueued, nil
}

func (s *LicenseService) insertWithFreshKey(ctx context.Context, license *model.License) error {
	for attempt := 0; attempt < keyGenerationAttempts; attempt++ {
		key, err := s.codec.Generate()
		if err != nil {
			return err
		}
		license.LicenseKey = key

		err = s.store.CreateLicense(ctx, license)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrDuplicate) {
			return fmt.Errorf("create license: %w", err)
		}
		s.logger.Warn("license key collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return ErrKeyExhausted
}

// dispatch runs fn in the background, detached from the request lifetime.
func (s *LicenseService) dispatch(ctx context.Context, what string, fn func(context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("background task failed", zap.String("task", what), zap.Error(err))
		}
	}()
}

// Get returns a license with its devices and most recent audit entries.
func (s *LicenseService) Get(ctx context.Context, id string) (*model.LicenseDetail, error) {
	license, err := s.store.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.lifecycle.Observe(ctx, license, s.now()); err != nil {
		return nil, err
	}

	devices, err := s.store.ListDevices(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ListActivationLogs(ctx, id, detailLogLimit)
	if err != nil {
		return nil, err
	}
	return &model.LicenseDetail{License: *license, Devices: devices, ActivationLogs: logs}, nil
}

func (s *LicenseService) List(ctx context.Context, filter model.LicenseFilter) ([]model.LicenseSummary, model.Pagination, error) {
	filter.Normalize()
	items, total, err := s.store.ListLicenses(ctx, filter)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	now := s.now()
	for i := range items {
		if _, _, err := s.lifecycle.Observe(ctx, &items[i].License, now); err != nil {
			return nil, model.Pagination{}, err
		}
	}
	return items, model.NewPagination(total, filter.Page, filter.Limit), nil
}

func (s *LicenseService) Update(ctx context.Context, actor Actor, id string, patch model.LicensePatch) (*model.License, error) {
	license, err := s.store.FindLicenseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.FullName != nil {
		license.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.NationalID != nil {
		license.NationalID = strings.TrimSpace(*patch.NationalID)
	}
	if patch.Email != nil {
		license.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.PhoneNumber != nil {
		license.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
	}
	if patch.MaxDevices != nil {
		license.MaxDevices = *patch.MaxDevices
	}
	if patch.ExpiresAt != nil {
		expiresAt, err := ParseExpiry(*patch.ExpiresAt)
		if err != nil {
			return nil, err
		}
		license.ExpiresAt = expiresAt
	}
	if patch.Status != nil {
		status := model.LicenseStatus(*patch.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, *patch.Status)
		}
		license.Status = status
	}
	license.UpdatedAt = s.now()

	if err := s.store.UpdateLicense(ctx, license); err != nil {
		return nil, err
	}
	s.oplog.record(ctx, actor, "update", "license", license.ID, patch)

	snapshot := *license
	s.dispatch(ctx, "sync license to sheet", func(ctx context.Context) error {
		return s.mirror.SyncLicense(ctx, snapshot)
	})
	return license, nil
}

// Delete removes a license together with its bindings and audit trail.
func (s *LicenseService) Delete(ctx context.Context, actor Actor, id string) error {
	license, err := s.store.FindLicenseByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLicense(ctx, id); err != nil {
		return err
	}
	s.oplog.record(ctx, actor, "delete", "license", id, map[string]any{"licenseKey": license.LicenseKey})

	key := license.LicenseKey
	s.dispatch(ctx, "remove license from sheet", func(ctx context.Context) error {
		return s.mirror.RemoveLicense(ctx, key)
	})
	return nil
}

func (s *LicenseService) Statistics(ctx context.Context) (model.LicenseStatistics, error) {
	stats, err := s.store.LicenseStatistics(ctx)
	if err != nil {
		return model.LicenseStatistics{}, err
	}
	stats.RecentActivations, err = s.store.RecentActivations(ctx, recentActivityLimit)
	if err != nil {
		return model.LicenseStatistics{}, err
	}
	return stats, nil
}
