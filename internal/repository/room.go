package repository

import (
	"context"
	"time"

	"podium/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository defines the interface for chat room and participant data operations
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.ChatRoom, error)
	GetRoomsForUser(ctx context.Context, userID uint) ([]*models.ChatRoom, error)
	ListRooms(ctx context.Context, eventID uint) ([]*models.ChatRoom, error)
	ArchiveRoom(ctx context.Context, id uint) error
	SetLastMessage(ctx context.Context, roomID uint, messageID string, at time.Time) error

	GetParticipant(ctx context.Context, roomID, userID uint) (*models.Participant, error)
	AddParticipant(ctx context.Context, p *models.Participant) error
	UpdateParticipant(ctx context.Context, roomID, userID uint, fields map[string]interface{}) error
}

// roomRepository implements RoomRepository
type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetRoomBySlug(ctx context.Context, slug string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("slug = ?", slug).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetRoomsForUser(ctx context.Context, userID uint) ([]*models.ChatRoom, error) {
	var rooms []*models.ChatRoom
	err := r.db.WithContext(ctx).
		Joins("JOIN room_participants rp ON chat_rooms.id = rp.chat_room_id").
		Where("rp.user_id = ? AND rp.left_at IS NULL AND rp.is_banned = ?", userID, false).
		Where("chat_rooms.chat_enabled = ? AND chat_rooms.archived = ?", true, false).
		Order("chat_rooms.last_activity_at DESC NULLS LAST").
		Find(&rooms).Error
	return rooms, err
}

func (r *roomRepository) ListRooms(ctx context.Context, eventID uint) ([]*models.ChatRoom, error) {
	var rooms []*models.ChatRoom
	q := r.db.WithContext(ctx).Where("archived = ?", false)
	if eventID != 0 {
		q = q.Where("event_id = ?", eventID)
	}
	err := q.Order("created_at DESC").Find(&rooms).Error
	return rooms, err
}

func (r *roomRepository) ArchiveRoom(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", id).
		Update("archived", true).Error
}

func (r *roomRepository) SetLastMessage(ctx context.Context, roomID uint, messageID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"last_message_id":  messageID,
			"last_activity_at": at,
		}).Error
}

func (r *roomRepository) GetParticipant(ctx context.Context, roomID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *roomRepository) AddParticipant(ctx context.Context, p *models.Participant) error {
	// Use OnConflict to silently ignore duplicate key errors; the composite
	// primary key keeps one row per (room, user).
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
}

// UpdateParticipant applies fields atomically to the single row addressed by
// the composite key. All ban/mute/leave mutations funnel through here.
func (r *roomRepository) UpdateParticipant(ctx context.Context, roomID, userID uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
