package model

import (
	"time"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleSupport Role = "SUPPORT"
)

type User struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	Name      string     `json:"name" gorm:"not null" bson:"name"`
	Email     string     `json:"email" gorm:"uniqueIndex;not null" bson:"email"`
	Password  string     `json:"-" gorm:"not null" bson:"password"`
	Role      Role       `json:"role" gorm:"size:16;not null" bson:"role"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`
}

// UserInput is the admin request to create an operator account.
type UserInput struct {
	Name     string `json:"name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     Role   `json:"role" validate:"omitempty,oneof=ADMIN SUPPORT"`
}

// UserPatch carries admin edits to an operator account; nil fields are left untouched.
type UserPatch struct {
	Name     *string `json:"name" validate:"omitempty,min=3"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Role     *Role   `json:"role" validate:"omitempty,oneof=ADMIN SUPPORT"`
}

type UserFilter struct {
	Keyword  string
	Role     Role
	Page     int
	PageSize int
}

func (f *UserFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

func (f UserFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
