package model

import (
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "ACTIVE"
	LicenseStatusExpired LicenseStatus = "EXPIRED"
	LicenseStatusRevoked LicenseStatus = "REVOKED"
)

// Valid reports whether s is one of the known license states.
func (s LicenseStatus) Valid() bool {
	switch s {
	case LicenseStatusActive, LicenseStatusExpired, LicenseStatusRevoked:
		return true
	}
	return false
}

// License is a paid grant bound to a holder with an expiry and a device ceiling.
type License struct {
	ID          string        `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	LicenseKey  string        `json:"licenseKey" gorm:"uniqueIndex;size:64;not null" bson:"licenseKey"`
	FullName    string        `json:"fullName" gorm:"not null" bson:"fullName"`
	NationalID  string        `json:"cinNumber" gorm:"column:cin_number;index" bson:"cinNumber"`
	Email       string        `json:"email" bson:"email"`
	PhoneNumber string        `json:"phoneNumber" bson:"phoneNumber"`
	MaxDevices  int           `json:"maxDevices" gorm:"not null" bson:"maxDevices"`
	Status      LicenseStatus `json:"status" gorm:"size:16;not null;index" bson:"status"`
	ExpiresAt   time.Time     `json:"expiresAt" gorm:"not null" bson:"expiresAt"`
	CreatedAt   time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
