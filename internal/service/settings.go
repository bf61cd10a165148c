package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"license-activation-service/internal/model"
)

var (
	ErrEmailDisabled = fmt.Errorf("%w: email notifications are disabled", model.ErrInvalidInput)
	// ErrEmailDelivery wraps a failure reported by the mail server.
	ErrEmailDelivery = errors.New("email delivery failed")
)

type SettingsService struct {
	store    SettingsStore
	defaults model.Settings
	notifier Notifier
	oplog    *OperationLogger
	now      func() time.Time
}

func NewSettingsService(store SettingsStore, defaults model.Settings, notifier Notifier, oplog *OperationLogger, now func() time.Time) *SettingsService {
	defaults.ID = model.SettingsID
	return &SettingsService{store: store, defaults: defaults, notifier: notifier, oplog: oplog, now: now}
}

// Current returns the stored settings, or the configured defaults when none were saved.
func (s *SettingsService) Current(ctx context.Context) (model.Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return *settings, nil
}

// EnsureDefaults persists the defaults if no settings record exists.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	_, err := s.store.GetSettings(ctx)
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	settings := s.defaults
	settings.LastUpdated = s.now()
	return s.store.SaveSettings(ctx, &settings)
}

func (s *SettingsService) Update(ctx context.Context, actor Actor, patch model.SettingsPatch) (model.Settings, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return model.Settings{}, err
	}

	if patch.EmailNotificationsEnabled != nil {
		settings.EmailNotificationsEnabled = *patch.EmailNotificationsEnabled
	}
	if patch.DefaultLicenseDurationDays != nil {
		settings.DefaultLicenseDurationDays = *patch.DefaultLicenseDurationDays
	}
	if patch.DefaultMaxDevices != nil {
		settings.DefaultMaxDevices = *patch.DefaultMaxDevices
	}
	if patch.TrialPeriodDays != nil {
		settings.TrialPeriodDays = *patch.TrialPeriodDays
	}
	settings.LastUpdated = s.now()

	if err := s.store.SaveSettings(ctx, &settings); err != nil {
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.oplog.record(ctx, actor, "update", "settings", model.SettingsID, patch)
	return settings, nil
}

// SendTestEmail sends a one-off message to verify the outgoing mail setup.
func (s *SettingsService) SendTestEmail(ctx context.Context, actor Actor, to string) error {
	settings, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if !settings.EmailNotificationsEnabled {
		return ErrEmailDisabled
	}

	err = s.notifier.SendTestEmail(ctx, to)
	switch {
	case errors.Is(err, ErrMailerNotConfigured):
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	s.oplog.record(ctx, actor, "test-email", "settings", model.SettingsID, map[string]any{"to": to})
	return nil
}
