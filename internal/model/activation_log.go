package model

import "time"

type LogAction string

const (
	LogActionActivate   LogAction = "ACTIVATE"
	LogActionValidate   LogAction = "VALIDATE"
	LogActionDeactivate LogAction = "DEACTIVATE"
	LogActionCheck      LogAction = "CHECK"
)

// UnknownLicenseID is recorded when the presented key matched no license.
const UnknownLicenseID = "unknown"

// ActivationLog is an append-only audit entry for one activation or check attempt.
type ActivationLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	LicenseID string    `json:"licenseId" gorm:"size:36;not null;index" bson:"licenseId"`
	DeviceID  string    `json:"deviceId" gorm:"size:255;not null" bson:"deviceId"`
	IPAddress string    `json:"ipAddress" bson:"ipAddress"`
	Action    LogAction `json:"action" gorm:"size:16;not null;index" bson:"action"`
	Timestamp time.Time `json:"timestamp" gorm:"index" bson:"timestamp"`
	Success   bool      `json:"success" bson:"success"`
	Details   string    `json:"details" bson:"details"`
}
