package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"license-activation-service/internal/model"
)

func newTrial(v model.TrialVisit) *model.TrialUsage {
	return &model.TrialUsage{
		ID:              model.NewID(),
		DeviceID:        v.DeviceID,
		DeviceName:      v.Meta.Name,
		DeviceType:      v.Meta.Type,
		FirstSeenAt:     v.Now,
		LastSeenAt:      v.Now,
		IPAddress:       v.IP,
		UsageCount:      1,
		TrialStartedAt:  v.Now,
		TrialExpiresAt:  v.Now.AddDate(0, 0, v.PeriodDays),
		TrialPeriodDays: v.PeriodDays,
	}
}

// FindOrCreateTrial returns the trial for the visiting device, creating it
// with usage count 1 when the device is new. created reports which happened.
func (s *Store) FindOrCreateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, bool, error) {
	var trial model.TrialUsage
	err := s.db.WithContext(ctx).Where("device_id = ?", v.DeviceID).First(&trial).Error
	switch {
	case err == nil:
		return &trial, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	created := newTrial(v)
	if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
		if !isDuplicate(err) {
			return nil, false, err
		}
		if err := s.db.WithContext(ctx).Where("device_id = ?", v.DeviceID).First(&trial).Error; err != nil {
			return nil, false, translate(err)
		}
		return &trial, false, nil
	}
	return created, true, nil
}

// UpdateTrial records a repeat visit: usage count, last-seen time and IP.
// Expiry is never recomputed.
func (s *Store) UpdateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, error) {
	var trial model.TrialUsage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TrialUsage{}).Where("device_id = ?", v.DeviceID).Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_seen_at": v.Now,
			"ip_address":   v.IP,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return tx.Where("device_id = ?", v.DeviceID).First(&trial).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &trial, nil
}

func (s *Store) TrialStatistics(ctx context.Context, now time.Time) (model.TrialStatistics, error) {
	var stats model.TrialStatistics
	db := s.db.WithContext(ctx).Model(&model.TrialUsage{})

	if err := db.Session(&gorm.Session{}).Where("converted = ? AND trial_expires_at > ?", false, now).Count(&stats.ActiveTrials).Error; err != nil {
		return stats, err
	}
	if err := db.Session(&gorm.Session{}).Where("converted = ? AND trial_expires_at <= ?", false, now).Count(&stats.ExpiredTrials).Error; err != nil {
		return stats, err
	}
	if err := db.Session(&gorm.Session{}).Where("converted = ?", true).Count(&stats.ConvertedTrials).Error; err != nil {
		return stats, err
	}

	stats.Finalize()
	return stats, nil
}

func (s *Store) RecentTrials(ctx context.Context, limit int) ([]model.TrialUsage, error) {
	var trials []model.TrialUsage
	err := s.db.WithContext(ctx).Order("last_seen_at DESC").Limit(limit).Find(&trials).Error
	return trials, err
}

// PurgeTrials deletes unconverted trials that expired before the cutoff.
func (s *Store) PurgeTrials(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("converted = ? AND trial_expires_at < ?", false, expiredBefore).
		Delete(&model.TrialUsage{})
	return res.RowsAffected, res.Error
}
