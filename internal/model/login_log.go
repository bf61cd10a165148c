package model

import "time"

type LoginLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID    string    `json:"userId" gorm:"size:36;index" bson:"userId"`
	IP        string    `json:"ip" bson:"ip"`
	UserAgent string    `json:"userAgent" bson:"userAgent"`
	Status    string    `json:"status" bson:"status"` // success, failed
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
