package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"podium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRoomRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	t.Run("CreateRoom", func(t *testing.T) {
		room := models.NewChatRoom(7, "Main Stage Q&A", models.AutoModConfig{Enabled: true})
		err := repo.CreateRoom(ctx, room)
		assert.NoError(t, err)
		assert.NotZero(t, room.ID)
		assert.Equal(t, "main-stage-qa", room.Slug)
	})

	t.Run("GetRoomBySlug", func(t *testing.T) {
		room := createTestRoom(t, db, "Hallway Track")

		fetched, err := repo.GetRoomBySlug(ctx, room.Slug)
		require.NoError(t, err)
		assert.Equal(t, room.ID, fetched.ID)

		_, err = repo.GetRoomBySlug(ctx, "no-such-room")
		assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	})

	t.Run("AddParticipantIsIdempotent", func(t *testing.T) {
		room := createTestRoom(t, db, "Workshop A")

		p := &models.Participant{ChatRoomID: room.ID, UserID: 10, Role: models.RoleMember, JoinedAt: time.Now()}
		require.NoError(t, repo.AddParticipant(ctx, p))
		require.NoError(t, repo.AddParticipant(ctx, p), "duplicate insert is silently ignored")

		fetched, err := repo.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, fetched.Participants, 1)
	})

	t.Run("UpdateParticipantTargetsSingleRow", func(t *testing.T) {
		room := createTestRoom(t, db, "Workshop B")
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: room.ID, UserID: 20, JoinedAt: time.Now()}))
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: room.ID, UserID: 21, JoinedAt: time.Now()}))

		now := time.Now()
		err := repo.UpdateParticipant(ctx, room.ID, 20, map[string]interface{}{
			"is_banned":  true,
			"ban_reason": "spam",
			"banned_at":  now,
		})
		require.NoError(t, err)

		banned, err := repo.GetParticipant(ctx, room.ID, 20)
		require.NoError(t, err)
		assert.True(t, banned.IsBanned)
		assert.Equal(t, "spam", banned.BanReason)

		other, err := repo.GetParticipant(ctx, room.ID, 21)
		require.NoError(t, err)
		assert.False(t, other.IsBanned, "sibling row untouched")
	})

	t.Run("UpdateParticipantMissingRow", func(t *testing.T) {
		room := createTestRoom(t, db, "Workshop C")
		err := repo.UpdateParticipant(ctx, room.ID, 999, map[string]interface{}{"is_muted": true})
		assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	})

	t.Run("GetRoomsForUser", func(t *testing.T) {
		active := createTestRoom(t, db, "Active Room")
		archived := createTestRoom(t, db, "Archived Room")
		bannedFrom := createTestRoom(t, db, "Banned Room")
		leftRoom := createTestRoom(t, db, "Left Room")

		userID := uint(30)
		now := time.Now()
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: active.ID, UserID: userID, JoinedAt: now}))
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: archived.ID, UserID: userID, JoinedAt: now}))
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: bannedFrom.ID, UserID: userID, JoinedAt: now, IsBanned: true}))
		require.NoError(t, repo.AddParticipant(ctx, &models.Participant{ChatRoomID: leftRoom.ID, UserID: userID, JoinedAt: now, LeftAt: &now}))
		require.NoError(t, repo.ArchiveRoom(ctx, archived.ID))

		rooms, err := repo.GetRoomsForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, active.ID, rooms[0].ID)
	})

	t.Run("SetLastMessage", func(t *testing.T) {
		room := createTestRoom(t, db, "Busy Room")
		at := time.Now()

		require.NoError(t, repo.SetLastMessage(ctx, room.ID, "msg-123", at))

		fetched, err := repo.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched.LastMessageID)
		assert.Equal(t, "msg-123", *fetched.LastMessageID)
		require.NotNil(t, fetched.LastActivityAt)
	})

	t.Run("ListRoomsByEvent", func(t *testing.T) {
		room := models.NewChatRoom(99, "Event Scoped", models.AutoModConfig{})
		require.NoError(t, repo.CreateRoom(ctx, room))

		rooms, err := repo.ListRooms(ctx, 99)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
	})
}
