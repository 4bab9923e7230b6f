package service

import (
	"context"
	"testing"
	"time"

	"podium/internal/models"
	"podium/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.ChatRoom{},
		&models.Participant{},
		&models.Message{},
		&models.ModerationLogEntry{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createRoomWithMember(t *testing.T, db *gorm.DB, title string, userID uint) *models.ChatRoom {
	t.Helper()
	room := models.NewChatRoom(1, title, models.AutoModConfig{})
	require.NoError(t, db.Create(room).Error)
	require.NoError(t, db.Create(&models.Participant{
		ChatRoomID: room.ID,
		UserID:     userID,
		Role:       models.RoleMember,
		JoinedAt:   time.Now(),
	}).Error)
	return room
}

func mustCreateMessage(t *testing.T, svc *MessageService, roomID, userID uint, content string) *models.Message {
	t.Helper()
	msg, err := svc.Create(context.Background(), CreateMessageInput{
		RoomID:  roomID,
		UserID:  userID,
		Content: content,
	})
	require.NoError(t, err)
	return msg
}

func newMessageService(db *gorm.DB) *MessageService {
	return NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewRoomRepository(db),
		nil,
	)
}
