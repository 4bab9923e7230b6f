package repository

import (
	"context"
	"time"

	"podium/internal/models"

	"gorm.io/gorm"
)

// MessageQuery bounds a history listing. Before/After window by creation
// time; a zero value means unbounded on that side.
type MessageQuery struct {
	Limit  int
	Before time.Time
	After  time.Time
}

// MessageRepository defines the interface for message data operations
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, roomID uint, q MessageQuery) ([]*models.Message, error)
	SetContent(ctx context.Context, id, content string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, id, deletedBy, reason string) error
}

// messageRepository implements MessageRepository
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns messages in reverse-chronological order, newest first.
func (r *messageRepository) List(ctx context.Context, roomID uint, q MessageQuery) ([]*models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("chat_room_id = ?", roomID)
	if !q.Before.IsZero() {
		query = query.Where("created_at < ?", q.Before)
	}
	if !q.After.IsZero() {
		query = query.Where("created_at > ?", q.After)
	}

	var messages []*models.Message
	err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited":    true,
			"edited_at": editedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkDeleted soft-deletes a message. Re-deleting an already-deleted message
// leaves the original deletion attribution intact.
func (r *messageRepository) MarkDeleted(ctx context.Context, id, deletedBy, reason string) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted":    true,
			"deleted_by":    deletedBy,
			"delete_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already deleted.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}
