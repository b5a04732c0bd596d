package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MimeCategory string

const (
	CategoryImage      MimeCategory = "image"
	CategoryAudio      MimeCategory = "audio"
	CategoryVideo      MimeCategory = "video"
	CategoryDocument   MimeCategory = "document"
	CategoryCompressed MimeCategory = "compressed"
	CategoryOther      MimeCategory = "other"
)

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
)

// ProvisionalIDPrefix namespaces client-side IDs; stored IDs are bare UUIDs and never carry it.
const ProvisionalIDPrefix = "pending-"

// FileRef describes an uploaded attachment. Key is stable, URL may expire.
type FileRef struct {
	Name         string       `json:"name" msgpack:"name"`
	Size         int64        `json:"size" msgpack:"size"`
	ContentType  string       `json:"type" msgpack:"type"`
	Category     MimeCategory `json:"fileType" msgpack:"fileType"`
	Key          string       `json:"key" msgpack:"key"`
	URL          string       `json:"url,omitempty" msgpack:"url,omitempty"`
	URLExpiresAt *time.Time   `json:"urlExpiresAt,omitempty" msgpack:"urlExpiresAt,omitempty"`
	ThumbnailKey string       `json:"thumbnailKey,omitempty" msgpack:"thumbnailKey,omitempty"`
	Width        int          `json:"width,omitempty" msgpack:"width,omitempty"`
	Height       int          `json:"height,omitempty" msgpack:"height,omitempty"`
}

// Message is one record of a group's message collection.
type Message struct {
	ID      string `gorm:"primaryKey;type:varchar(64)" json:"id" msgpack:"id"`
	GroupID string `gorm:"type:varchar(128);not null;index:idx_group_created,priority:1" json:"groupId" msgpack:"groupId"`

	AuthorID          string `gorm:"column:uid;type:varchar(128);not null;index" json:"uid" msgpack:"uid"`
	AuthorDisplayName string `gorm:"column:display_name;type:varchar(255)" json:"displayName" msgpack:"displayName"`
	AuthorPhotoRef    string `gorm:"column:photo_url;type:text" json:"photoURL,omitempty" msgpack:"photoURL,omitempty"`
	AuthorMajor       string `gorm:"column:major;type:varchar(255)" json:"major,omitempty" msgpack:"major,omitempty"`

	Text      string   `gorm:"column:text;type:text" json:"text" msgpack:"text"`
	File      *FileRef `gorm:"column:file;type:jsonb;serializer:json" json:"file,omitempty" msgpack:"file,omitempty"`
	ReplyToID string   `gorm:"column:reply_to_id;type:varchar(64)" json:"replyToId,omitempty" msgpack:"replyToId,omitempty"`

	CreatedAt time.Time      `gorm:"index:idx_group_created,priority:2" json:"createdAt" msgpack:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" msgpack:"-"`

	DeliveryState DeliveryState `gorm:"-" json:"deliveryState" msgpack:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns the final identifier when the caller did not.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" || m.IsPending() {
		m.ID = uuid.NewString()
	}
	m.DeliveryState = DeliveryConfirmed
	return nil
}

// AfterFind marks loaded records as confirmed.
func (m *Message) AfterFind(tx *gorm.DB) error {
	m.DeliveryState = DeliveryConfirmed
	return nil
}

func NewProvisionalID() string {
	return ProvisionalIDPrefix + uuid.NewString()
}

func (m *Message) IsPending() bool {
	return m.DeliveryState == DeliveryPending || strings.HasPrefix(m.ID, ProvisionalIDPrefix)
}

// IsMeaningful reports whether the message carries text or a file.
func (m *Message) IsMeaningful() bool {
	return strings.TrimSpace(m.Text) != "" || m.File != nil
}

// IsAuthoredBy is false for an empty user ID, so an unauthenticated viewer owns nothing.
func (m *Message) IsAuthoredBy(userID string) bool {
	return userID != "" && m.AuthorID == userID
}

// Cursor returns the pagination position of m.
func (m *Message) Cursor() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Cursor is a position in a group's (createdAt, id) ordering.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id,omitempty"`
}

func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// Before reports whether a sorts before b: by createdAt, then by ID.
func Before(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// OlderThan reports whether m sorts strictly before c.
func (m *Message) OlderThan(c Cursor) bool {
	if !m.CreatedAt.Equal(c.CreatedAt) {
		return m.CreatedAt.Before(c.CreatedAt)
	}
	if c.ID == "" {
		return false
	}
	return m.ID < c.ID
}

// SortChronological orders msgs ascending in place.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return Before(&msgs[i], &msgs[j])
	})
}

// ReverseInPlace flips a newest-first page into ascending order.
func ReverseInPlace(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
