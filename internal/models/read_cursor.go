package models

import (
	"time"
)

// ReadCursor tracks per-user read progress in a group.
// LastRead only moves forward; unread messages are those created after it.
type ReadCursor struct {
	UserID    string    `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	GroupID   string    `gorm:"primaryKey;type:varchar(128)" json:"group_id"`
	LastRead  time.Time `gorm:"not null" json:"last_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReadCursor) TableName() string {
	return "read_cursors"
}
