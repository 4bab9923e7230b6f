package repository

import (
	"context"
	"time"

	"podium/internal/models"

	"gorm.io/gorm"
)

// LogQuery filters a moderation log listing.
type LogQuery struct {
	Action       models.ModerationAction
	TargetUserID uint
	Limit        int
}

// ActionCount is one row of the per-action stats aggregation.
type ActionCount struct {
	Action models.ModerationAction `json:"action"`
	Count  int64                   `json:"count"`
}

// ModerationRepository defines the interface for moderation log data operations
type ModerationRepository interface {
	CreateEntry(ctx context.Context, entry *models.ModerationLogEntry) error
	ListEntries(ctx context.Context, roomID uint, q LogQuery) ([]*models.ModerationLogEntry, error)
	CountByAction(ctx context.Context, roomID uint) ([]ActionCount, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// moderationRepository implements ModerationRepository
type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new moderation repository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) CreateEntry(ctx context.Context, entry *models.ModerationLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *moderationRepository) ListEntries(ctx context.Context, roomID uint, q LogQuery) ([]*models.ModerationLogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("chat_room_id = ?", roomID)
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if q.TargetUserID != 0 {
		query = query.Where("target_user_id = ?", q.TargetUserID)
	}

	var entries []*models.ModerationLogEntry
	err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *moderationRepository) CountByAction(ctx context.Context, roomID uint) ([]ActionCount, error) {
	var counts []ActionCount
	err := r.db.WithContext(ctx).Model(&models.ModerationLogEntry{}).
		Select("action, COUNT(*) as count").
		Where("chat_room_id = ?", roomID).
		Group("action").
		Find(&counts).Error
	return counts, err
}

// PurgeOlderThan removes entries past the retention age. Entries with an
// ExpiresAt still in the future are kept regardless of age: their effect is
// still authoritative.
func (r *moderationRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("expires_at IS NULL OR expires_at < ?", time.Now()).
		Delete(&models.ModerationLogEntry{})
	return res.RowsAffected, res.Error
}
