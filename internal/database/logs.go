package database

import (
	"context"
	"database/sql"
	"time"

	"license-activation-service/internal/model"
)

func (s *Store) AppendActivationLog(ctx context.Context, entry *model.ActivationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListActivationLogs(ctx context.Context, licenseID string, limit int) ([]model.ActivationLog, error) {
	var logs []model.ActivationLog
	err := s.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CountActivationLogs counts audit entries for a license id, including the unknown sentinel.
func (s *Store) CountActivationLogs(ctx context.Context, licenseID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ActivationLog{}).Where("license_id = ?", licenseID).Count(&count).Error
	return count, err
}

// RecentActivations lists the latest successful first-time bindings.
func (s *Store) RecentActivations(ctx context.Context, limit int) ([]model.RecentActivation, error) {
	var rows []struct {
		ID         string
		DeviceID   string
		Timestamp  time.Time
		LicenseKey sql.NullString
		FullName   sql.NullString
	}
	err := s.db.WithContext(ctx).Table("activation_logs AS l").
		Select("l.id AS id, l.device_id AS device_id, l.timestamp AS timestamp, lic.license_key AS license_key, lic.full_name AS full_name").
		Joins("LEFT JOIN licenses AS lic ON lic.id = l.license_id").
		Where("l.action = ? AND l.success = ?", model.LogActionActivate, true).
		Order("l.timestamp DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	recent := make([]model.RecentActivation, 0, len(rows))
	for _, r := range rows {
		recent = append(recent, model.RecentActivation{
			ID:         r.ID,
			LicenseKey: r.LicenseKey.String,
			FullName:   r.FullName.String,
			DeviceID:   r.DeviceID,
			Timestamp:  r.Timestamp,
		})
	}
	return recent, nil
}

func (s *Store) AppendOperationLog(ctx context.Context, entry *model.OperationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListOperationLogs pages operator actions, newest first. An empty userID lists all users.
func (s *Store) ListOperationLogs(ctx context.Context, userID string, page, pageSize int) ([]model.OperationLog, int64, error) {
	var (
		logs  []model.OperationLog
		total int64
	)

	query := s.db.WithContext(ctx).Model(&model.OperationLog{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *Store) AppendLoginLog(ctx context.Context, entry *model.LoginLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListLoginLogs(ctx context.Context, userID string, page, pageSize int) ([]model.LoginLog, int64, error) {
	var (
		logs  []model.LoginLog
		total int64
	)

	query := s.db.WithContext(ctx).Model(&model.LoginLog{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
