package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podium/internal/kv"
	"podium/internal/middleware"
	"podium/internal/models"
	"podium/internal/observability"
	"podium/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageService creates, edits, and soft-deletes chat messages and enforces
// room-level send permission. Moderator deletions do not go through here;
// they are enforcement actions handled by the moderation pipeline.
type MessageService struct {
	msgRepo  repository.MessageRepository
	roomRepo repository.RoomRepository
	kv       kv.Backend
}

// NewMessageService returns a new MessageService.
func NewMessageService(msgRepo repository.MessageRepository, roomRepo repository.RoomRepository, backend kv.Backend) *MessageService {
	return &MessageService{msgRepo: msgRepo, roomRepo: roomRepo, kv: backend}
}

// CreateMessageInput is the input for creating a message.
type CreateMessageInput struct {
	RoomID      uint
	UserID      uint
	Content     string
	ReplyToID   *string
	Attachments []models.Attachment
}

func rateLimitKey(roomID, userID uint) string {
	return fmt.Sprintf("chat:ratelimit:%d:%d", roomID, userID)
}

// checkRateLimit counts sends in a sliding minute window via the kv backend.
// A transport failure fails open: losing rate limiting briefly beats losing
// chat entirely.
func (s *MessageService) checkRateLimit(ctx context.Context, room *models.ChatRoom, userID uint) error {
	if s.kv == nil || room.RateLimitPerMinute <= 0 {
		return nil
	}

	key := rateLimitKey(room.ID, userID)
	n, err := s.kv.Incr(ctx, key)
	if err != nil {
		middleware.Logger.Warn("rate limit check unavailable, allowing send",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if n == 1 {
		if _, err := s.kv.Expire(ctx, key, time.Minute); err != nil {
			middleware.Logger.Warn("failed to set rate limit window",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	if n > int64(room.RateLimitPerMinute) {
		return models.NewRateLimitedError("sending too fast, slow down")
	}
	return nil
}

// Create validates send permission and content, persists the message, and
// advances the room's last-message pointer.
func (s *MessageService) Create(ctx context.Context, in CreateMessageInput) (*models.Message, error) {
	room, err := s.roomRepo.GetRoom(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", in.RoomID)
		}
		return nil, models.NewInternalError(err)
	}

	now := time.Now()
	if err := room.CanSendMessage(in.UserID, now); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("message content cannot be empty")
	}
	if room.MaxMessageLength > 0 && len(content) > room.MaxMessageLength {
		return nil, models.NewValidationError(fmt.Sprintf("message exceeds the %d character limit", room.MaxMessageLength))
	}

	if in.ReplyToID != nil {
		parent, err := s.msgRepo.Get(ctx, *in.ReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("message", *in.ReplyToID)
			}
			return nil, models.NewInternalError(err)
		}
		if parent.ChatRoomID != in.RoomID {
			return nil, models.NewNotFoundError("message", *in.ReplyToID)
		}
	}

	if err := s.checkRateLimit(ctx, room, in.UserID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		ChatRoomID:  in.RoomID,
		UserID:      in.UserID,
		Content:     content,
		Attachments: in.Attachments,
		ReplyToID:   in.ReplyToID,
		CreatedAt:   now,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}

	if err := s.roomRepo.SetLastMessage(ctx, in.RoomID, msg.ID, now); err != nil {
		middleware.Logger.Warn("failed to advance last-message pointer",
			slog.Uint64("room_id", uint64(in.RoomID)), slog.String("error", err.Error()))
	}

	observability.MessageThroughput.WithLabelValues(fmt.Sprintf("%d", in.RoomID), "created").Inc()
	return msg, nil
}

// Edit replaces a message's content. Only the original author may edit.
func (s *MessageService) Edit(ctx context.Context, messageID string, userID uint, content string) (*models.Message, error) {
	msg, err := s.msgRepo.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("message", messageID)
		}
		return nil, models.NewInternalError(err)
	}
	if msg.UserID != userID {
		return nil, models.NewPermissionDeniedError("only the author can edit a message")
	}
	if msg.IsDeleted {
		return nil, models.NewPermissionDeniedError("cannot edit a deleted message")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("message content cannot be empty")
	}

	now := time.Now()
	if err := s.msgRepo.SetContent(ctx, messageID, content, now); err != nil {
		return nil, models.NewInternalError(err)
	}

	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now
	observability.MessageThroughput.WithLabelValues(fmt.Sprintf("%d", msg.ChatRoomID), "edited").Inc()
	return msg, nil
}

// SoftDelete marks a message deleted by its author. Moderator deletions go
// through the moderation pipeline instead so enforcement is distinguishable
// from authored deletion.
func (s *MessageService) SoftDelete(ctx context.Context, messageID string, userID uint) error {
	msg, err := s.msgRepo.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("message", messageID)
		}
		return models.NewInternalError(err)
	}
	if msg.UserID != userID {
		return models.NewPermissionDeniedError("only the author can delete a message")
	}

	if err := s.msgRepo.MarkDeleted(ctx, messageID, fmt.Sprintf("%d", userID), "deleted by author"); err != nil {
		return models.NewInternalError(err)
	}
	observability.MessageThroughput.WithLabelValues(fmt.Sprintf("%d", msg.ChatRoomID), "deleted").Inc()
	return nil
}

// List returns room history newest first, bounded by the query limit
// (default 50), optionally windowed by creation time.
func (s *MessageService) List(ctx context.Context, roomID uint, q repository.MessageQuery) ([]*models.Message, error) {
	if _, err := s.roomRepo.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	msgs, err := s.msgRepo.List(ctx, roomID, q)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}
