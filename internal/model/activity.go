package model

import "time"

// ActivityKind classifies a recent-activity entry.
type ActivityKind string

const (
	ActivityAutoRequest       ActivityKind = "auto_request"
	ActivityManualRequest     ActivityKind = "manual_request"
	ActivityDeliveryCompleted ActivityKind = "delivery_completed"
)

// Activity is one line of a user's recent-activity log.
type Activity struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	UserID    string       `gorm:"index:idx_activity_user_created;size:128;not null" json:"-"`
	Kind      ActivityKind `gorm:"size:32;not null" json:"kind"`
	Title     string       `gorm:"size:128;not null" json:"title"`
	Message   string       `gorm:"not null" json:"message"`
	Level     int          `gorm:"not null" json:"level"`
	RequestID string       `gorm:"size:64" json:"requestId,omitempty"`
	CreatedAt time.Time    `gorm:"index:idx_activity_user_created;not null" json:"createdAt"`
}
