package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"license-activation-service/internal/model"
)

// ResolveStatus applies the lazy ACTIVE to EXPIRED transition. mutated is
// true only when the returned status differs from the stored one.
func ResolveStatus(license *model.License, now time.Time) (status model.LicenseStatus, mutated bool) {
	if license.Status == model.LicenseStatusActive && license.ExpiresAt.Before(now) {
		return model.LicenseStatusExpired, true
	}
	return license.Status, false
}

// DaysRemaining is the whole days until expiresAt, rounded up, never negative.
func DaysRemaining(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Lifecycle persists status transitions observed on read.
type Lifecycle struct {
	licenses LicenseStore
}

func NewLifecycle(licenses LicenseStore) *Lifecycle {
	return &Lifecycle{licenses: licenses}
}

// Observe resolves the effective status of license at now and persists an
// expiry before returning. license is updated in place.
func (l *Lifecycle) Observe(ctx context.Context, license *model.License, now time.Time) (status model.LicenseStatus, expiredNow bool, err error) {
	status, mutated := ResolveStatus(license, now)
	if !mutated {
		return status, false, nil
	}
	if err := l.licenses.ExpireLicense(ctx, license.ID, now); err != nil {
		return "", false, fmt.Errorf("persist license expiry: %w", err)
	}
	license.Status = status
	license.UpdatedAt = now
	return status, true, nil
}
