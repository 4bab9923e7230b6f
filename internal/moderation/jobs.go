// Package moderation implements the asynchronous pipeline that screens
// message content and executes moderator-issued actions. Jobs are processed
// at-least-once; every handler is idempotent with respect to already-applied
// effects, and the audit log is written strictly before any effect.
package moderation

import (
	"context"
	"time"

	"podium/internal/models"
)

// JobKind identifies the two pipeline job families.
type JobKind string

const (
	KindContentFilter    JobKind = "content_filter"
	KindModerationAction JobKind = "moderation_action"
)

// ContentFilterJob screens one message against the room's auto-moderation
// settings.
type ContentFilterJob struct {
	MessageID string
	RoomID    uint
	UserID    uint
	Content   string
}

// ActionJob applies a moderator-issued decision.
type ActionJob struct {
	Action       models.ModerationAction
	RoomID       uint
	TargetUserID uint
	ModeratorID  string
	Reason       string
	Duration     time.Duration
	MessageID    *string
}

// Job is one unit of pipeline work. Exactly one of the payload fields is
// set, matching Kind.
type Job struct {
	Kind          JobKind
	ContentFilter *ContentFilterJob
	Action        *ActionJob

	attempts int
}

// Event is a domain event emitted after a job's effects are applied. The
// gateway fans these out to connected clients over pub/sub.
type Event struct {
	Type         string                  `json:"type"`
	RoomID       uint                    `json:"room_id"`
	MessageID    string                  `json:"message_id,omitempty"`
	TargetUserID uint                    `json:"target_user_id,omitempty"`
	ModeratorID  string                  `json:"moderator_id,omitempty"`
	Action       models.ModerationAction `json:"action,omitempty"`
	Reason       string                  `json:"reason,omitempty"`
	Categories   []string                `json:"categories,omitempty"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
}

// Event types carried on the moderation channel.
const (
	EventContentFlagged   = "content.flagged"
	EventMessageDeleted   = "message.deleted"
	EventModerationAction = "moderation.action"
)

// EventPublisher is the capability the pipeline uses to announce outcomes.
// The gateway implements it over the kv pub/sub transport.
type EventPublisher interface {
	PublishModerationEvent(ctx context.Context, event Event) error
}

// NopPublisher discards events. Used where fan-out is not wired, e.g. the
// seed command.
type NopPublisher struct{}

func (NopPublisher) PublishModerationEvent(context.Context, Event) error { return nil }
