package models

import (
	"regexp"
	"strings"
	"time"
)

// Participant roles within a chat room.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleOwner     = "owner"
)

// Room is the base event-space record a chat room is scoped to.
// It is embedded in ChatRoom rather than inherited.
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"index" json:"event_id"`
	Title     string    `gorm:"not null" json:"title"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Archived  bool      `gorm:"default:false" json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutoModConfig holds the room's automatic content-screening settings.
type AutoModConfig struct {
	Enabled         bool `gorm:"default:false" json:"enabled"`
	ProfanityFilter bool `gorm:"default:true" json:"profanity_filter"`
	SpamFilter      bool `gorm:"default:true" json:"spam_filter"`
	LinkFilter      bool `gorm:"default:false" json:"link_filter"`
	AutoDelete      bool `gorm:"default:false" json:"auto_delete"`
}

// ChatRoom composes the base Room with chat settings and participants.
type ChatRoom struct {
	Room `gorm:"embedded"`

	ChatEnabled        bool          `gorm:"default:true" json:"chat_enabled"`
	MaxMessageLength   int           `gorm:"default:1000" json:"max_message_length"`
	RateLimitPerMinute int           `gorm:"default:20" json:"rate_limit_per_minute"`
	AutoMod            AutoModConfig `gorm:"embedded;embeddedPrefix:automod_" json:"auto_mod"`
	LastMessageID      *string       `json:"last_message_id,omitempty"`
	LastActivityAt     *time.Time    `json:"last_activity_at,omitempty"`

	Participants []Participant `gorm:"foreignKey:ChatRoomID" json:"participants,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// Participant is a user's membership record within a chat room.
// The composite primary key guarantees at most one entry per user per room;
// a user who left and rejoins has LeftAt cleared instead of a new row.
type Participant struct {
	ChatRoomID uint       `gorm:"primaryKey;autoIncrement:false" json:"chat_room_id"`
	UserID     uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Role       string     `gorm:"default:member" json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	IsMuted    bool       `gorm:"default:false" json:"is_muted"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`
	IsBanned   bool       `gorm:"default:false" json:"is_banned"`
	BanReason  string     `gorm:"type:text;default:''" json:"ban_reason"`
	BannedAt   *time.Time `json:"banned_at,omitempty"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (Participant) TableName() string {
	return "room_participants"
}

// Active reports whether the participant currently belongs to the room.
func (p *Participant) Active() bool {
	return p.LeftAt == nil && !p.IsBanned
}

// MutedAt reports whether the participant is muted at the given time.
// A mute whose MutedUntil has elapsed is no longer authoritative.
func (p *Participant) MutedAt(now time.Time) bool {
	if !p.IsMuted {
		return false
	}
	if p.MutedUntil != nil && now.After(*p.MutedUntil) {
		return false
	}
	return true
}

// IsModerator reports whether the participant may issue moderation actions.
func (p *Participant) IsModerator() bool {
	return p.Role == RoleModerator || p.Role == RoleOwner
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
var slugDashes = regexp.MustCompile(`-{2,}`)

// Slugify converts a title to a unique-index-friendly URL slug.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NewChatRoom builds a chat room for the given event with derived fields
// computed up front. There are no ORM lifecycle hooks; all normalization
// happens here before persistence.
func NewChatRoom(eventID uint, title string, autoMod AutoModConfig) *ChatRoom {
	title = strings.TrimSpace(title)
	return &ChatRoom{
		Room: Room{
			EventID: eventID,
			Title:   title,
			Slug:    Slugify(title),
		},
		ChatEnabled:        true,
		MaxMessageLength:   1000,
		RateLimitPerMinute: 20,
		AutoMod:            autoMod,
	}
}

// FindParticipant returns the participant entry for the user, if loaded.
func (r *ChatRoom) FindParticipant(userID uint) *Participant {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i]
		}
	}
	return nil
}

// CanSendMessage reports whether the user may post to this room right now.
// The returned error carries the denial reason.
func (r *ChatRoom) CanSendMessage(userID uint, now time.Time) error {
	if !r.ChatEnabled {
		return NewPermissionDeniedError("chat is disabled for this room")
	}
	if r.Archived {
		return NewPermissionDeniedError("room is archived")
	}
	p := r.FindParticipant(userID)
	if p == nil || p.LeftAt != nil {
		return NewPermissionDeniedError("not a participant of this room")
	}
	if p.IsBanned {
		return NewPermissionDeniedError("banned from this room")
	}
	if p.MutedAt(now) {
		return NewPermissionDeniedError("muted in this room")
	}
	return nil
}
