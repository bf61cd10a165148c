package model

import "time"

// SettingsID is the key of the single settings record.
const SettingsID = "default"

// Settings holds operator-tunable defaults read once per operation.
type Settings struct {
	ID                         string    `json:"-" gorm:"primaryKey;size:36" bson:"_id"`
	EmailNotificationsEnabled  bool      `json:"emailNotificationsEnabled" bson:"emailNotificationsEnabled"`
	DefaultLicenseDurationDays int       `json:"defaultLicenseDuration" gorm:"not null" bson:"defaultLicenseDuration"`
	DefaultMaxDevices          int       `json:"defaultMaxDevices" gorm:"not null" bson:"defaultMaxDevices"`
	TrialPeriodDays            int       `json:"trialPeriodDays" gorm:"not null" bson:"trialPeriodDays"`
	LastUpdated                time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

type SettingsPatch struct {
	EmailNotificationsEnabled  *bool `json:"emailNotificationsEnabled"`
	DefaultLicenseDurationDays *int  `json:"defaultLicenseDuration" validate:"omitempty,min=1,max=3650"`
	DefaultMaxDevices          *int  `json:"defaultMaxDevices" validate:"omitempty,min=1,max=10"`
	TrialPeriodDays            *int  `json:"trialPeriodDays" validate:"omitempty,min=1,max=30"`
}
