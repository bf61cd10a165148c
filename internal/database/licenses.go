package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"license-activation-service/internal/model"
)

func (s *Store) FindLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	var license model.License
	if err := s.db.WithContext(ctx).Where("license_key = ?", key).First(&license).Error; err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

func (s *Store) FindLicenseByID(ctx context.Context, id string) (*model.License, error) {
	var license model.License
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&license).Error; err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

// CreateLicense returns model.ErrDuplicate when the key is already taken.
func (s *Store) CreateLicense(ctx context.Context, license *model.License) error {
	return translate(s.db.WithContext(ctx).Create(license).Error)
}

func (s *Store) UpdateLicense(ctx context.Context, license *model.License) error {
	res := s.db.WithContext(ctx).Model(&model.License{}).Where("id = ?", license.ID).Updates(map[string]any{
		"full_name":    license.FullName,
		"cin_number":   license.NationalID,
		"email":        license.Email,
		"phone_number": license.PhoneNumber,
		"max_devices":  license.MaxDevices,
		"status":       license.Status,
		"expires_at":   license.ExpiresAt,
		"updated_at":   license.UpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ExpireLicense moves an ACTIVE license to EXPIRED. It is a no-op for any other state.
func (s *Store) ExpireLicense(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&model.License{}).
		Where("id = ? AND status = ?", id, model.LicenseStatusActive).
		Updates(map[string]any{"status": model.LicenseStatusExpired, "updated_at": now}).Error
}

// DeleteLicense removes a license with its devices and audit entries.
func (s *Store) DeleteLicense(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("license_id = ?", id).Delete(&model.ActivationLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("license_id = ?", id).Delete(&model.Device{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.License{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListLicenses(ctx context.Context, filter model.LicenseFilter) ([]model.LicenseSummary, int64, error) {
	filter.Normalize()

	query := s.db.WithContext(ctx).Model(&model.License{})
	if filter.Name != "" {
		query = query.Where("full_name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.NationalID != "" {
		query = query.Where("cin_number LIKE ?", "%"+filter.NationalID+"%")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var licenses []model.License
	if err := query.Order("created_at DESC").Offset(filter.Offset()).Limit(filter.Limit).Find(&licenses).Error; err != nil {
		return nil, 0, err
	}

	counts, err := s.deviceCounts(ctx, licenses)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.LicenseSummary, 0, len(licenses))
	for _, l := range licenses {
		summaries = append(summaries, model.LicenseSummary{License: l, DeviceCount: counts[l.ID]})
	}
	return summaries, total, nil
}

func (s *Store) deviceCounts(ctx context.Context, licenses []model.License) (map[string]int64, error) {
	counts := make(map[string]int64, len(licenses))
	if len(licenses) == 0 {
		return counts, nil
	}

	ids := make([]string, 0, len(licenses))
	for _, l := range licenses {
		ids = append(ids, l.ID)
	}

	var rows []struct {
		LicenseID string
		Count     int64
	}
	err := s.db.WithContext(ctx).Model(&model.Device{}).
		Select("license_id, COUNT(*) AS count").
		Where("license_id IN ?", ids).
		Group("license_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.LicenseID] = r.Count
	}
	return counts, nil
}

// LicenseStatistics counts licenses per state and all bound devices.
func (s *Store) LicenseStatistics(ctx context.Context) (model.LicenseStatistics, error) {
	var stats model.LicenseStatistics

	var rows []struct {
		Status model.LicenseStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&model.License{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.TotalLicenses += r.Count
		switch r.Status {
		case model.LicenseStatusActive:
			stats.ActiveLicenses = r.Count
		case model.LicenseStatusExpired:
			stats.ExpiredLicenses = r.Count
		case model.LicenseStatusRevoked:
			stats.RevokedLicenses = r.Count
		}
	}

	if err := s.db.WithContext(ctx).Model(&model.Device{}).Count(&stats.TotalDevices).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
