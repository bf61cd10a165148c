package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"license-activation-service/internal/model"
)

// The capacity test and the insert are one statement, so the device count
// can never pass maxDevices even without an outer lock.
const insertDeviceIfCapacity = `
INSERT INTO devices (id, device_id, license_id, device_name, device_type, first_seen_at, last_seen_at, ip_address)
SELECT ?, ?, ?, ?, ?, ?, ?, ?
WHERE (SELECT COUNT(*) FROM devices WHERE license_id = ?) < ?`

func (s *Store) CountDevices(ctx context.Context, licenseID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Device{}).Where("license_id = ?", licenseID).Count(&count).Error
	return count, err
}

func (s *Store) FindDevice(ctx context.Context, licenseID, deviceID string) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).Where("license_id = ? AND device_id = ?", licenseID, deviceID).First(&device).Error
	if err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

func (s *Store) ListDevices(ctx context.Context, licenseID string) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).Where("license_id = ?", licenseID).Order("first_seen_at ASC").Find(&devices).Error
	return devices, err
}

// BindDevice upserts the binding of d to its license. An existing binding is
// touched and reported as already bound; a new one is inserted only while the
// license holds fewer than maxDevices bindings.
func (s *Store) BindDevice(ctx context.Context, d *model.Device, maxDevices int) (model.BindResult, error) {
	result := model.BindResult{MaxDevices: maxDevices}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findDevice(tx, d.LicenseID, d.DeviceID)
		switch {
		case err == nil:
			if err := touchDevice(tx, existing, d.IPAddress, d.LastSeenAt); err != nil {
				return err
			}
			result.Outcome = model.BindAlreadyBound
			result.Device = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			res := tx.Exec(insertDeviceIfCapacity,
				d.ID, d.DeviceID, d.LicenseID, d.DeviceName, d.DeviceType, d.FirstSeenAt, d.LastSeenAt, d.IPAddress,
				d.LicenseID, maxDevices)
			switch {
			case res.Error != nil && isDuplicate(res.Error):
				existing, err := findDevice(tx, d.LicenseID, d.DeviceID)
				if err != nil {
					return err
				}
				result.Outcome = model.BindAlreadyBound
				result.Device = existing
			case res.Error != nil:
				return res.Error
			case res.RowsAffected == 1:
				result.Outcome = model.BindBound
				result.Device = d
			default:
				result.Outcome = model.BindRejected
			}
		default:
			return err
		}

		return tx.Model(&model.Device{}).Where("license_id = ?", d.LicenseID).Count(&result.DeviceCount).Error
	})
	if err != nil {
		return model.BindResult{}, err
	}
	return result, nil
}

// TouchDevice refreshes last-seen time and IP of an existing binding.
func (s *Store) TouchDevice(ctx context.Context, licenseID, deviceID, ip string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("license_id = ? AND device_id = ?", licenseID, deviceID).
		Updates(map[string]any{"last_seen_at": now, "ip_address": ip})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func findDevice(tx *gorm.DB, licenseID, deviceID string) (*model.Device, error) {
	var device model.Device
	if err := tx.Where("license_id = ? AND device_id = ?", licenseID, deviceID).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func touchDevice(tx *gorm.DB, d *model.Device, ip string, now time.Time) error {
	err := tx.Model(&model.Device{}).Where("id = ?", d.ID).
		Updates(map[string]any{"last_seen_at": now, "ip_address": ip}).Error
	if err != nil {
		return err
	}
	d.LastSeenAt = now
	d.IPAddress = ip
	return nil
}
