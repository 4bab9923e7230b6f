package service

import (
	"context"
	"testing"
	"time"

	"podium/internal/models"
	"podium/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipService(t *testing.T) {
	db := setupTestDB(t)
	roomRepo := repository.NewRoomRepository(db)
	svc := NewMembershipService(roomRepo)
	ctx := context.Background()

	t.Run("CanJoinTruthTable", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Truth Table", 1)

		ok, err := svc.CanJoin(ctx, 1, room.ID)
		require.NoError(t, err)
		assert.True(t, ok, "active participant may join")

		ok, err = svc.CanJoin(ctx, 2, room.ID)
		require.NoError(t, err)
		assert.False(t, ok, "no participant entry means no access")

		require.NoError(t, svc.Ban(ctx, 1, room.ID, "spam"))
		ok, err = svc.CanJoin(ctx, 1, room.ID)
		require.NoError(t, err)
		assert.False(t, ok, "banned participant may not join")

		require.NoError(t, svc.Unban(ctx, 1, room.ID))
		require.NoError(t, svc.RemoveParticipant(ctx, 1, room.ID))
		ok, err = svc.CanJoin(ctx, 1, room.ID)
		require.NoError(t, err)
		assert.False(t, ok, "left participant may not join")
	})

	t.Run("AddParticipantIsIdempotent", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Idempotent Join", 10)

		require.NoError(t, svc.AddParticipant(ctx, 10, room.ID))
		require.NoError(t, svc.AddParticipant(ctx, 10, room.ID))

		fetched, err := svc.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, fetched.Participants, 1)
	})

	t.Run("AddParticipantReactivatesLeftEntry", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Rejoin", 20)
		require.NoError(t, svc.RemoveParticipant(ctx, 20, room.ID))

		require.NoError(t, svc.AddParticipant(ctx, 20, room.ID))

		p, err := roomRepo.GetParticipant(ctx, room.ID, 20)
		require.NoError(t, err)
		assert.Nil(t, p.LeftAt, "rejoin clears LeftAt instead of duplicating the entry")
	})

	t.Run("RejoinNeverEnrolls", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Rejoin Only", 25)

		err := svc.Rejoin(ctx, 26, room.ID)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodePermissionDenied), "no entry means no access")

		require.NoError(t, svc.RemoveParticipant(ctx, 25, room.ID))
		require.NoError(t, svc.Rejoin(ctx, 25, room.ID))
		p, err := roomRepo.GetParticipant(ctx, room.ID, 25)
		require.NoError(t, err)
		assert.Nil(t, p.LeftAt)

		require.NoError(t, svc.Ban(ctx, 25, room.ID, "rules"))
		err = svc.Rejoin(ctx, 25, room.ID)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodePermissionDenied))
	})

	t.Run("AddParticipantRefusesBanned", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Ban Refusal", 30)
		require.NoError(t, svc.Ban(ctx, 30, room.ID, "rules"))

		err := svc.AddParticipant(ctx, 30, room.ID)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodePermissionDenied))
	})

	t.Run("AddParticipantMissingRoom", func(t *testing.T) {
		err := svc.AddParticipant(ctx, 1, 9999)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("RemoveParticipantRetainsRow", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Leave", 40)
		require.NoError(t, svc.RemoveParticipant(ctx, 40, room.ID))

		p, err := roomRepo.GetParticipant(ctx, room.ID, 40)
		require.NoError(t, err)
		assert.NotNil(t, p.LeftAt)
		assert.False(t, p.IsBanned)
	})

	t.Run("MuteWithDuration", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Mute", 50)
		require.NoError(t, svc.Mute(ctx, 50, room.ID, 10*time.Minute))

		p, err := roomRepo.GetParticipant(ctx, room.ID, 50)
		require.NoError(t, err)
		assert.True(t, p.IsMuted)
		require.NotNil(t, p.MutedUntil)
		assert.True(t, p.MutedAt(time.Now()))
		assert.False(t, p.MutedAt(time.Now().Add(time.Hour)), "mute expires")

		require.NoError(t, svc.Unmute(ctx, 50, room.ID))
		p, err = roomRepo.GetParticipant(ctx, room.ID, 50)
		require.NoError(t, err)
		assert.False(t, p.IsMuted)
		assert.Nil(t, p.MutedUntil)
	})

	t.Run("UpdateLastRead", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Read Cursor", 60)
		require.NoError(t, svc.UpdateLastRead(ctx, 60, room.ID))

		p, err := roomRepo.GetParticipant(ctx, room.ID, 60)
		require.NoError(t, err)
		assert.NotNil(t, p.LastReadAt)
	})

	t.Run("CanModerate", func(t *testing.T) {
		room := createRoomWithMember(t, db, "Mod Check", 70)

		ok, err := svc.CanModerate(ctx, 70, room.ID)
		require.NoError(t, err)
		assert.False(t, ok, "plain member cannot moderate")

		require.NoError(t, roomRepo.UpdateParticipant(ctx, room.ID, 70, map[string]interface{}{"role": models.RoleModerator}))
		ok, err = svc.CanModerate(ctx, 70, room.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
