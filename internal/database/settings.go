package database

import (
	"context"

	"license-activation-service/internal/model"
)

func (s *Store) GetSettings(ctx context.Context) (*model.Settings, error) {
	var settings model.Settings
	if err := s.db.WithContext(ctx).Where("id = ?", model.SettingsID).First(&settings).Error; err != nil {
		return nil, translate(err)
	}
	return &settings, nil
}

// SaveSettings writes the single settings record, creating it if absent.
func (s *Store) SaveSettings(ctx context.Context, settings *model.Settings) error {
	settings.ID = model.SettingsID
	return s.db.WithContext(ctx).Save(settings).Error
}
