package models

import (
	"time"
)

// ModerationAction enumerates the decisions the pipeline can record.
type ModerationAction string

const (
	ActionBan           ModerationAction = "ban"
	ActionUnban         ModerationAction = "unban"
	ActionMute          ModerationAction = "mute"
	ActionUnmute        ModerationAction = "unmute"
	ActionDeleteMessage ModerationAction = "delete_message"
	ActionWarn          ModerationAction = "warn"
	ActionFlag          ModerationAction = "flag"
)

// ModerationTrigger records what initiated the action.
type ModerationTrigger string

const (
	TriggerManual ModerationTrigger = "manual"
	TriggerAuto   ModerationTrigger = "auto"
	TriggerReport ModerationTrigger = "report"
)

// SystemModeratorID is the moderator id recorded for automatic actions.
const SystemModeratorID = "system"

// ModerationLogEntry is an immutable audit record of a moderation decision.
// Entries are never mutated after creation; a periodic retention job purges
// expired entries past the configured age.
type ModerationLogEntry struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	ChatRoomID      uint              `gorm:"index;not null" json:"room_id"`
	ModeratorID     string            `gorm:"size:64;not null" json:"moderator_id"`
	TargetUserID    uint              `gorm:"index" json:"target_user_id"`
	Action          ModerationAction  `gorm:"size:32;index;not null" json:"action"`
	Trigger         ModerationTrigger `gorm:"size:16;not null" json:"trigger"`
	Reason          string            `gorm:"type:text;default:''" json:"reason"`
	DurationMinutes int               `gorm:"default:0" json:"duration_minutes,omitempty"`
	MessageID       *string           `gorm:"size:36" json:"message_id,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Metadata        map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ModerationLogEntry) TableName() string {
	return "moderation_log_entries"
}

// ExpiredAt reports whether the entry's effect is no longer authoritative.
func (e *ModerationLogEntry) ExpiredAt(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
