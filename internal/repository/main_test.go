package repository

import (
	"testing"
	"time"

	"podium/internal/models"

	"github.com/google/uuid"
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

func createTestRoom(t *testing.T, db *gorm.DB, title string) *models.ChatRoom {
	t.Helper()
	room := models.NewChatRoom(1, title, models.AutoModConfig{Enabled: true})
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	return room
}

func createTestMessage(t *testing.T, db *gorm.DB, roomID, userID uint, content string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:         uuid.NewString(),
		ChatRoomID: roomID,
		UserID:     userID,
		Content:    content,
		CreatedAt:  at,
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	return msg
}
