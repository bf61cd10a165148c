package service

import (
	"context"
	"fmt"
	"time"

	"license-activation-service/internal/lock"
	"license-activation-service/internal/model"
)

// BindingManager serializes binding attempts per license and delegates the
// capacity decision to the store.
type BindingManager struct {
	devices DeviceStore
	locker  lock.Locker
	metrics *Metrics
}

func NewBindingManager(devices DeviceStore, locker lock.Locker, metrics *Metrics) *BindingManager {
	return &BindingManager{devices: devices, locker: locker, metrics: metrics}
}

func (m *BindingManager) Bind(ctx context.Context, license *model.License, deviceID string, meta model.DeviceMeta, ip string, now time.Time) (model.BindResult, error) {
	release, err := m.locker.Lock(ctx, "license:"+license.ID)
	if err != nil {
		return model.BindResult{}, fmt.Errorf("lock license %s: %w", license.ID, err)
	}
	defer release()

	device := &model.Device{
		ID:          model.NewID(),
		DeviceID:    deviceID,
		LicenseID:   license.ID,
		DeviceName:  meta.Name,
		DeviceType:  meta.Type,
		FirstSeenAt: now,
		LastSeenAt:  now,
		IPAddress:   ip,
	}
	result, err := m.devices.BindDevice(ctx, device, license.MaxDevices)
	if err != nil {
		return model.BindResult{}, fmt.Errorf("bind device: %w", err)
	}
	m.metrics.binding(result.Outcome.String())
	return result, nil
}

// Lookup returns the binding of deviceID to licenseID, or model.ErrNotFound.
func (m *BindingManager) Lookup(ctx context.Context, licenseID, deviceID string) (*model.Device, error) {
	return m.devices.FindDevice(ctx, licenseID, deviceID)
}
