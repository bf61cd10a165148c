package model

import (
	"fmt"
	"time"
)

type RecentActivation struct {
	ID         string    `json:"id"`
	LicenseKey string    `json:"licenseKey"`
	FullName   string    `json:"fullName"`
	DeviceID   string    `json:"deviceId"`
	Timestamp  time.Time `json:"timestamp"`
}

// LicenseStatistics is the dashboard summary of licenses and bindings.
type LicenseStatistics struct {
	TotalLicenses     int64              `json:"totalLicenses"`
	ActiveLicenses    int64              `json:"activeLicenses"`
	ExpiredLicenses   int64              `json:"expiredLicenses"`
	RevokedLicenses   int64              `json:"revokedLicenses"`
	TotalDevices      int64              `json:"totalDevices"`
	RecentActivations []RecentActivation `json:"recentActivations"`
}

type TrialStatistics struct {
	ActiveTrials    int64  `json:"activeTrials"`
	ExpiredTrials   int64  `json:"expiredTrials"`
	ConvertedTrials int64  `json:"convertedTrials"`
	TotalTrials     int64  `json:"totalTrials"`
	ConversionRate  string `json:"conversionRate"`
}

// Finalize fills the derived total and conversion rate.
func (ts *TrialStatistics) Finalize() {
	ts.TotalTrials = ts.ActiveTrials + ts.ExpiredTrials + ts.ConvertedTrials
	if ts.TotalTrials == 0 {
		ts.ConversionRate = "0%"
		return
	}
	ts.ConversionRate = fmt.Sprintf("%.2f%%", float64(ts.ConvertedTrials)/float64(ts.TotalTrials)*100)
}
