package model

import "time"

// Device is the durable binding of one device identity to one license.
// (DeviceID, LicenseID) is unique.
type Device struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	DeviceID    string    `json:"deviceId" gorm:"size:255;not null;uniqueIndex:idx_device_license" bson:"deviceId"`
	LicenseID   string    `json:"licenseId" gorm:"size:36;not null;uniqueIndex:idx_device_license;index" bson:"licenseId"`
	DeviceName  string    `json:"deviceName" bson:"deviceName"`
	DeviceType  string    `json:"deviceType" bson:"deviceType"`
	FirstSeenAt time.Time `json:"firstSeenAt" bson:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt" bson:"lastSeenAt"`
	IPAddress   string    `json:"ipAddress" bson:"ipAddress"`
}

// DeviceMeta is the resolved {type, name} pair for a calling device.
type DeviceMeta struct {
	Type string
	Name string
}

type BindOutcome int

const (
	BindBound BindOutcome = iota + 1
	BindAlreadyBound
	BindRejected
)

func (o BindOutcome) String() string {
	switch o {
	case BindBound:
		return "bound"
	case BindAlreadyBound:
		return "already_bound"
	case BindRejected:
		return "rejected"
	}
	return "unknown"
}

// BindResult is what a binding attempt produced. Device is nil when rejected.
type BindResult struct {
	Outcome     BindOutcome
	Device      *Device
	DeviceCount int64
	MaxDevices  int
}
