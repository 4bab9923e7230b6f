package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event types accepted from clients.
const (
	EventJoin    = "chat:join"
	EventLeave   = "chat:leave"
	EventTyping  = "chat:typing"
	EventMessage = "chat:message"
)

// Outbound event types sent to clients.
const (
	EventPresence    = "chat:presence"
	EventOnlineUsers = "chat:online_users"
	EventModeration  = "chat:moderation"
	EventError       = "error"
)

// Envelope is the wire format for every gateway event in both directions.
// SessionID names the originating session so the relay can skip echoing an
// event back to its sender.
type Envelope struct {
	Type      string      `json:"type"`
	RoomID    uint        `json:"room_id,omitempty"`
	UserID    uint        `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Avatar    string      `json:"avatar,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// inboundMessage is the payload of a chat:message event.
type inboundMessage struct {
	Content   string  `json:"content"`
	ReplyToID *string `json:"reply_to_id,omitempty"`
}

// typingPayload is the body of a chat:typing event in both directions.
type typingPayload struct {
	IsTyping bool `json:"is_typing"`
}

// inboundEnvelope mirrors Envelope with a raw payload so each handler can
// decode its own shape.
type inboundEnvelope struct {
	Type    string          `json:"type"`
	RoomID  uint            `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// presencePayload is the body of a chat:presence event.
type presencePayload struct {
	Status   string     `json:"status"` // "online", "offline", "joined", "left"
	UserID   uint       `json:"user_id"`
	Username string     `json:"username,omitempty"`
	Avatar   string     `json:"avatar,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// onlineCountPayload is the body of a room-scoped chat:online_users event.
type onlineCountPayload struct {
	Count int `json:"count"`
}

// Redis channel naming. Every process subscribes to all three patterns and
// relays deliveries to its local sessions.
func ChatChannel(roomID uint) string       { return fmt.Sprintf("chat:room:%d", roomID) }
func PresenceChannel(roomID uint) string   { return fmt.Sprintf("presence:room:%d", roomID) }
func ModerationChannel(roomID uint) string { return fmt.Sprintf("moderation:room:%d", roomID) }

// onlineUsersKey is the Redis set of user ids with at least one live
// connection anywhere in the fleet.
const onlineUsersKey = "chat:online_users"

// parseRoomChannel extracts the room id from any of the three channel
// families. The second return is the channel family prefix.
func parseRoomChannel(channel string) (uint, string, bool) {
	var roomID uint
	if _, err := fmt.Sscanf(channel, "chat:room:%d", &roomID); err == nil {
		return roomID, "chat", true
	}
	if _, err := fmt.Sscanf(channel, "presence:room:%d", &roomID); err == nil {
		return roomID, "presence", true
	}
	if _, err := fmt.Sscanf(channel, "moderation:room:%d", &roomID); err == nil {
		return roomID, "moderation", true
	}
	return 0, "", false
}
