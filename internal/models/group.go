package models

import (
	"time"
)

type GroupCategory string

const (
	GroupMajor   GroupCategory = "major"
	GroupGeneral GroupCategory = "general"
	GroupCourse  GroupCategory = "course"
)

type Group struct {
	ID        string        `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Name      string        `gorm:"size:255;not null" json:"name"`
	Category  GroupCategory `gorm:"column:type;type:varchar(20);not null;index" json:"type"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Members is advisory and computed on read.
	Members int64 `gorm:"-" json:"members"`
}

func (Group) TableName() string {
	return "groups"
}
