package models

import (
	"time"
)

// Attachment describes a file attached to a message. The file itself lives
// in external storage; only the reference is kept here.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Message is a single chat utterance. Messages are soft-deleted only and
// retained indefinitely for audit.
type Message struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	ChatRoomID   uint         `gorm:"index:idx_messages_room_created;not null" json:"room_id"`
	UserID       uint         `gorm:"index;not null" json:"user_id"`
	Content      string       `gorm:"type:text;not null" json:"content"`
	Attachments  []Attachment `gorm:"serializer:json" json:"attachments,omitempty"`
	Edited       bool         `gorm:"default:false" json:"edited"`
	EditedAt     *time.Time   `json:"edited_at,omitempty"`
	IsDeleted    bool         `gorm:"default:false" json:"is_deleted"`
	DeletedBy    string       `gorm:"size:64;default:''" json:"deleted_by,omitempty"`
	DeleteReason string       `gorm:"type:text;default:''" json:"delete_reason,omitempty"`
	ReplyToID    *string      `gorm:"size:36" json:"reply_to_id,omitempty"`
	CreatedAt    time.Time    `gorm:"index:idx_messages_room_created" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}
