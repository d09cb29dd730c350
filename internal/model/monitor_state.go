package model

import "time"

// MonitorState is the persisted dispatch-monitor state of one user.
// StateKey follows the "waterLevel_<userId>" convention; Level holds a string integer.
type MonitorState struct {
	StateKey        string    `gorm:"primaryKey;size:160"`
	UserID          string    `gorm:"uniqueIndex;size:128;not null"`
	Level           string    `gorm:"size:8;not null"`
	AutoRequestSent bool      `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}
