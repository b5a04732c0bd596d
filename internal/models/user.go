package models

import (
	"time"
)

// User is the locally cached profile of an identity-provider account.
type User struct {
	ID          string     `gorm:"primaryKey;type:varchar(128)" json:"uid"`
	DisplayName string     `gorm:"size:255" json:"displayName"`
	PhotoURL    string     `gorm:"type:text" json:"photoURL"`
	Major       string     `gorm:"size:255;index" json:"major"`
	LastSeen    *time.Time `json:"last_seen"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type UserResponse struct {
	ID          string     `json:"uid"`
	DisplayName string     `json:"displayName"`
	PhotoURL    string     `json:"photoURL"`
	Major       string     `json:"major"`
	LastSeen    *time.Time `json:"last_seen"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Major:       u.Major,
		LastSeen:    u.LastSeen,
	}
}

// DisplayNameOrDefault mirrors how anonymous accounts are shown in the feed.
func (u *User) DisplayNameOrDefault() string {
	if u.DisplayName == "" {
		return "Anonymous"
	}
	return u.DisplayName
}

// Identity is the signed-in user as asserted by the identity provider.
// The zero value is an unauthenticated viewer who owns no messages.
type Identity struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Major       string `json:"major,omitempty"`
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

// Profile returns the cached profile record for the identity.
func (i Identity) Profile() *User {
	return &User{
		ID:          i.UserID,
		DisplayName: i.DisplayName,
		PhotoURL:    i.PhotoURL,
		Major:       i.Major,
	}
}
