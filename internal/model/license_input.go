package model

import "time"

// LicenseInput is the operator request to provision a license.
type LicenseInput struct {
	FullName    string `json:"fullName" validate:"required,min=3"`
	NationalID  string `json:"cinNumber" validate:"required,min=5"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=8"`
	MaxDevices  int    `json:"maxDevices" validate:"omitempty,min=1,max=10"`
	ExpiresAt   string `json:"expiresAt" validate:"omitempty"`
	SendEmail   *bool  `json:"sendEmail"`
}

// LicensePatch carries operator edits; nil fields are left untouched.
type LicensePatch struct {
	FullName    *string `json:"fullName" validate:"omitempty,min=3"`
	NationalID  *string `json:"cinNumber" validate:"omitempty,min=5"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,min=8"`
	MaxDevices  *int    `json:"maxDevices" validate:"omitempty,min=1,max=10"`
	ExpiresAt   *string `json:"expiresAt"`
	Status      *string `json:"status" validate:"omitempty,oneof=ACTIVE EXPIRED REVOKED"`
}

type LicenseFilter struct {
	Name        string
	NationalID  string
	Status      LicenseStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	Limit       int
}

// Normalize clamps paging to sane bounds.
func (f *LicenseFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

func (f LicenseFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type LicenseSummary struct {
	License
	DeviceCount int64 `json:"deviceCount"`
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

func NewPagination(total int64, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// LicenseDetail is a license with its bindings and recent audit trail.
type LicenseDetail struct {
	License
	Devices        []Device        `json:"devices"`
	ActivationLogs []ActivationLog `json:"activationLogs"`
}
