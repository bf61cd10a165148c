package model

import "time"

// TrialUsage tracks an anonymous, key-less trial for one device.
// TrialExpiresAt and TrialPeriodDays are fixed when the record is created.
type TrialUsage struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	DeviceID        string     `json:"deviceId" gorm:"size:255;not null;uniqueIndex" bson:"deviceId"`
	DeviceName      string     `json:"deviceName" bson:"deviceName"`
	DeviceType      string     `json:"deviceType" bson:"deviceType"`
	FirstSeenAt     time.Time  `json:"firstSeenAt" bson:"firstSeenAt"`
	LastSeenAt      time.Time  `json:"lastSeenAt" gorm:"index" bson:"lastSeenAt"`
	IPAddress       string     `json:"ipAddress" bson:"ipAddress"`
	UsageCount      int        `json:"usageCount" gorm:"not null" bson:"usageCount"`
	TrialStartedAt  time.Time  `json:"trialStartedAt" bson:"trialStartedAt"`
	TrialExpiresAt  time.Time  `json:"trialExpiresAt" gorm:"not null;index" bson:"trialExpiresAt"`
	TrialPeriodDays int        `json:"trialPeriodDays" gorm:"not null" bson:"trialPeriodDays"`
	Converted       bool       `json:"converted" bson:"converted"`
	ConvertedAt     *time.Time `json:"convertedAt,omitempty" bson:"convertedAt,omitempty"`
}

// TrialVisit is the per-call data recorded against a trial.
type TrialVisit struct {
	DeviceID string
	Meta     DeviceMeta
	IP       string
	Now      time.Time
	// PeriodDays is only used when the visit creates the trial.
	PeriodDays int
}
