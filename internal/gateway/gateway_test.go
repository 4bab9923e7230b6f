package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"podium/internal/kv"
	"podium/internal/models"
	"podium/internal/moderation"
	"podium/internal/presence"
	"podium/internal/repository"
	"podium/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	mr      *miniredis.Miniredis
	backend kv.Backend
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ChatRoom{},
		&models.Participant{},
		&models.Message{},
		&models.ModerationLogEntry{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	backend, err := kv.NewSingle(kv.SingleOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	return &testEnv{db: db, mr: mr, backend: backend}
}

// newGateway builds a gateway with its own presence registry over the shared
// database and Redis, like one process in a multi-process deployment.
func (e *testEnv) newGateway(t *testing.T, ctx context.Context) *Gateway {
	t.Helper()
	roomRepo := repository.NewRoomRepository(e.db)
	msgRepo := repository.NewMessageRepository(e.db)
	membership := service.NewMembershipService(roomRepo)
	messages := service.NewMessageService(msgRepo, roomRepo, e.backend)

	g := NewGateway(presence.NewRegistry(), membership, messages, e.backend)
	g.StartWiring(ctx)
	return g
}

func (e *testEnv) createRoomWithMembers(t *testing.T, title string, userIDs ...uint) *models.ChatRoom {
	t.Helper()
	room := models.NewChatRoom(1, title, models.AutoModConfig{})
	require.NoError(t, e.db.Create(room).Error)
	for _, id := range userIDs {
		require.NoError(t, e.db.Create(&models.Participant{
			ChatRoomID: room.ID, UserID: id, JoinedAt: time.Now(),
		}).Error)
	}
	return room
}

func connect(t *testing.T, g *Gateway, userID uint) *Client {
	t.Helper()
	client := &Client{
		gateway:   g,
		Send:      make(chan []byte, 64),
		SessionID: uuid.NewString(),
		UserID:    userID,
		Username:  fmt.Sprintf("user-%d", userID),
		Avatar:    fmt.Sprintf("https://cdn.example/u/%d.png", userID),
	}
	g.register(context.Background(), client)
	return client
}

// recvEnvelope drains the client's send channel until an envelope of the
// wanted type arrives or the timeout elapses.
func recvEnvelope(t *testing.T, client *Client, wantType string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-client.Send:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Type == wantType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q envelope", wantType)
			return Envelope{}
		}
	}
}

func sendEvent(g *Gateway, client *Client, eventType string, roomID uint, payload interface{}) {
	evt := map[string]interface{}{"type": eventType, "room_id": roomID}
	if payload != nil {
		evt["payload"] = payload
	}
	raw, _ := json.Marshal(evt)
	g.handleInbound(client, raw)
}

func TestRegisterJoinsAuthorizedRooms(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Keynote", 1)
	client := connect(t, g, 1)

	assert.Equal(t, 1, g.registry.CountOnline(room.ID))
	assert.Equal(t, 1, g.CountLocalSessions())

	snapshot := recvEnvelope(t, client, EventOnlineUsers)
	assert.NotNil(t, snapshot.Payload)

	members, err := env.backend.SMembers(ctx, onlineUsersKey)
	require.NoError(t, err)
	assert.Contains(t, members, "1")
}

func TestMessageFansOutAcrossGateways(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two gateways over the same Redis, like two server processes.
	g1 := env.newGateway(t, ctx)
	g2 := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Cross Process", 1, 2)
	alice := connect(t, g1, 1)
	bob := connect(t, g2, 2)

	sendEvent(g1, alice, EventMessage, room.ID, map[string]string{"content": "hello from A"})

	for _, client := range []*Client{alice, bob} {
		delivered := recvEnvelope(t, client, EventMessage)
		assert.Equal(t, room.ID, delivered.RoomID)
		assert.Equal(t, uint(1), delivered.UserID)
		assert.Equal(t, alice.Avatar, delivered.Avatar)
	}

	// The message was persisted with a server-assigned id.
	var count int64
	require.NoError(t, env.db.Model(&models.Message{}).Where("chat_room_id = ?", room.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBannedUserBlockedOnNextSend(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Enforcement", 1)
	client := connect(t, g, 1)

	// Ban lands while the user is connected.
	require.NoError(t, g.membership.Ban(ctx, 1, room.ID, "rules"))

	sendEvent(g, client, EventMessage, room.ID, map[string]string{"content": "still here?"})

	errEnv := recvEnvelope(t, client, EventError)
	assert.Equal(t, room.ID, errEnv.RoomID)

	// Blocked on send, not force-disconnected.
	assert.Equal(t, 1, g.CountLocalSessions())

	var count int64
	require.NoError(t, env.db.Model(&models.Message{}).Where("chat_room_id = ?", room.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestJoinRefusedForBanned(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Ban Join", 1)
	require.NoError(t, g.membership.Ban(ctx, 1, room.ID, "rules"))

	client := connect(t, g, 1)
	sendEvent(g, client, EventJoin, room.ID, nil)

	recvEnvelope(t, client, EventError)
	assert.Equal(t, 0, g.registry.CountOnline(room.ID))
}

func TestJoinReactivatesLeftParticipant(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Rejoin", 1)
	require.NoError(t, g.membership.RemoveParticipant(ctx, 1, room.ID))

	client := connect(t, g, 1)
	assert.Equal(t, 0, g.registry.CountOnline(room.ID), "left room is not replayed")

	sendEvent(g, client, EventJoin, room.ID, nil)
	assert.Equal(t, 1, g.registry.CountOnline(room.ID))

	var p models.Participant
	require.NoError(t, env.db.Where("chat_room_id = ? AND user_id = ?", room.ID, 1).First(&p).Error)
	assert.Nil(t, p.LeftAt)
}

func TestJoinRefusedWithoutMembership(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Members Only", 1)

	// User 2 has no participant entry; a bare session cannot enroll itself.
	client := connect(t, g, 2)
	sendEvent(g, client, EventJoin, room.ID, nil)

	recvEnvelope(t, client, EventError)
	assert.Equal(t, 0, g.registry.CountOnline(room.ID))

	var count int64
	require.NoError(t, env.db.Model(&models.Participant{}).
		Where("chat_room_id = ? AND user_id = ?", room.ID, 2).Count(&count).Error)
	assert.Zero(t, count, "join must not create a participant row")
}

// recvOnlineCount drains room-scoped online-count envelopes until the wanted
// count arrives.
func recvOnlineCount(t *testing.T, client *Client, roomID uint, want int) {
	t.Helper()
	for {
		env := recvEnvelope(t, client, EventOnlineUsers)
		if env.RoomID != roomID {
			continue
		}
		var p onlineCountPayload
		b, err := json.Marshal(env.Payload)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &p))
		if p.Count == want {
			return
		}
	}
}

func TestJoinAndLeaveBroadcastOnlineCount(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Counted", 1, 2)
	alice := connect(t, g, 1)
	bob := connect(t, g, 2)

	// Bob's connect replay joins the room; the updated count reaches alice.
	recvOnlineCount(t, alice, room.ID, 2)

	sendEvent(g, bob, EventLeave, room.ID, nil)
	recvOnlineCount(t, alice, room.ID, 1)
}

func TestTypingRelaysToOtherMembersOnly(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Typing", 1, 2)
	alice := connect(t, g, 1)
	bob := connect(t, g, 2)

	sendEvent(g, alice, EventTyping, room.ID, map[string]bool{"is_typing": true})

	typing := recvEnvelope(t, bob, EventTyping)
	assert.Equal(t, uint(1), typing.UserID)
	assert.Equal(t, "user-1", typing.Username)

	var p typingPayload
	b, err := json.Marshal(typing.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &p))
	assert.True(t, p.IsTyping)

	// The sender never sees its own indicator.
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case raw := <-alice.Send:
			var frame Envelope
			require.NoError(t, json.Unmarshal(raw, &frame))
			require.NotEqual(t, EventTyping, frame.Type, "typing echoed back to sender")
		case <-deadline:
			return
		}
	}
}

func TestDisconnectPublishesOfflineWithLastSeen(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Goodbye", 1, 2)
	alice := connect(t, g, 1)
	bob := connect(t, g, 2)

	g.disconnect(alice)

	var offline Envelope
	for {
		offline = recvEnvelope(t, bob, EventPresence)
		var p presencePayload
		b, err := json.Marshal(offline.Payload)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &p))
		if p.Status == "offline" {
			assert.Equal(t, uint(1), p.UserID)
			assert.NotNil(t, p.LastSeen)
			break
		}
	}

	assert.Equal(t, room.ID, offline.RoomID)
	assert.Equal(t, 1, g.registry.CountOnline(room.ID), "only bob remains")

	members, err := env.backend.SMembers(ctx, onlineUsersKey)
	require.NoError(t, err)
	assert.NotContains(t, members, "1")
}

func TestMalformedEventYieldsScopedError(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	env.createRoomWithMembers(t, "Malformed", 1)
	client := connect(t, g, 1)

	g.handleInbound(client, []byte("{not json"))
	recvEnvelope(t, client, EventError)

	g.handleInbound(client, []byte(`{"type":"chat:unknown","room_id":1}`))
	recvEnvelope(t, client, EventError)

	// The session survives bad input.
	assert.Equal(t, 1, g.CountLocalSessions())
}

func TestModerationEventFanOut(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := env.createRoomWithMembers(t, "Mod Events", 1)
	client := connect(t, g, 1)

	require.NoError(t, g.PublishModerationEvent(ctx, moderation.Event{
		Type:         moderation.EventModerationAction,
		RoomID:       room.ID,
		TargetUserID: 1,
		ModeratorID:  "42",
		Action:       models.ActionWarn,
		Reason:       "be nice",
	}))

	delivered := recvEnvelope(t, client, EventModeration)
	assert.Equal(t, room.ID, delivered.RoomID)
}

func TestFlaggedMessageAutoDeleteReachesRoom(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := env.newGateway(t, ctx)

	room := models.NewChatRoom(1, "Strict", models.AutoModConfig{
		Enabled: true, SpamFilter: true, AutoDelete: true,
	})
	require.NoError(t, env.db.Create(room).Error)
	require.NoError(t, env.db.Create(&models.Participant{
		ChatRoomID: room.ID, UserID: 1, JoinedAt: time.Now(),
	}).Error)

	roomRepo := repository.NewRoomRepository(env.db)
	pipeline := moderation.NewPipeline(
		roomRepo,
		repository.NewMessageRepository(env.db),
		repository.NewModerationRepository(env.db),
		service.NewMembershipService(roomRepo),
		g, nil, moderation.Options{Workers: 1},
	)
	pipeline.Start(ctx)
	t.Cleanup(pipeline.Stop)
	g.SetPipeline(pipeline)

	client := connect(t, g, 1)
	sendEvent(g, client, EventMessage, room.ID, map[string]string{"content": "AAAAAAAAAAAAAAAAAAAAAAAAA"})

	// The message echo arrives first, then the pipeline's verdicts.
	recvEnvelope(t, client, EventMessage)
	flagged := recvEnvelope(t, client, EventModeration)
	assert.Equal(t, room.ID, flagged.RoomID)
}
