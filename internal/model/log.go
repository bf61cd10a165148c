package model

import "time"

// OperationLog records an operator mutation (license edit, settings change, purge).
type OperationLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID    string    `json:"userId" gorm:"size:36;index" bson:"userId"`
	Action    string    `json:"action" bson:"action"`
	Target    string    `json:"target" bson:"target"`
	TargetID  string    `json:"targetId" bson:"targetId"`
	Details   string    `json:"details" bson:"details"`
	CreatedAt time.Time `json:"createdAt" gorm:"index" bson:"createdAt"`
}
