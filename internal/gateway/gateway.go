// Package gateway is the stateful front door for real-time chat. It accepts
// authenticated websocket connections, wires them to the presence registry
// and the membership/message services, and relays events between clients and
// the moderation pipeline. All broadcasts travel over kv pub/sub so a
// message authored on one process reaches sessions connected to another.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"podium/internal/auth"
	"podium/internal/kv"
	"podium/internal/moderation"
	"podium/internal/observability"
	"podium/internal/presence"
	"podium/internal/service"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Gateway coordinates all websocket sessions on this process.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*Client

	registry   *presence.Registry
	membership *service.MembershipService
	messages   *service.MessageService
	pipeline   *moderation.Pipeline
	kv         kv.Backend
	wsLog      *observability.WSLogger
}

// NewGateway wires the connection handler. The pipeline may be nil when
// auto-moderation screening is not wanted (e.g. probes).
func NewGateway(
	registry *presence.Registry,
	membership *service.MembershipService,
	messages *service.MessageService,
	backend kv.Backend,
) *Gateway {
	return &Gateway{
		sessions:   make(map[string]*Client),
		registry:   registry,
		membership: membership,
		messages:   messages,
		kv:         backend,
		wsLog:      observability.NewWSLogger("chat gateway"),
	}
}

// SetPipeline attaches the moderation pipeline. Set after construction
// because the pipeline publishes its events back through the gateway.
func (g *Gateway) SetPipeline(p *moderation.Pipeline) {
	g.pipeline = p
}

// HandleConnection runs one authenticated websocket session to completion.
// The token was already verified; a connection reaching here is in the
// Authenticated state. Blocks until the connection drops.
func (g *Gateway) HandleConnection(conn *websocket.Conn, identity *auth.Identity) {
	client := &Client{
		gateway:   g,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		SessionID: uuid.NewString(),
		UserID:    identity.UserID,
		Username:  identity.Username,
		Avatar:    identity.Avatar,
	}

	g.register(context.Background(), client)

	go client.WritePump()
	client.ReadPump()
}

// register joins the session to every room the user is authorized for and
// announces presence. A reconnecting client replays joins through here; no
// server-side reconnect state exists.
func (g *Gateway) register(ctx context.Context, client *Client) {
	g.mu.Lock()
	g.sessions[client.SessionID] = client
	g.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	g.wsLog.LogConnect(ctx, client.UserID, client.SessionID)

	rooms, err := g.membership.GetRoomsForUser(ctx, client.UserID)
	if err != nil {
		g.sendError(client, 0, "failed to load rooms")
		return
	}

	for _, room := range rooms {
		g.joinRoom(ctx, client, room.ID)
	}

	if err := g.kv.SAdd(ctx, onlineUsersKey, strconv.FormatUint(uint64(client.UserID), 10)); err != nil {
		g.wsLog.LogError(ctx, client.UserID, 0, err, "online_set_add")
	}

	g.sendOnlineUsers(ctx, client)
}

// disconnect tears the session down: presence entries removed, offline
// announced with last-seen.
func (g *Gateway) disconnect(client *Client) {
	ctx := context.Background()

	g.mu.Lock()
	_, known := g.sessions[client.SessionID]
	delete(g.sessions, client.SessionID)
	g.mu.Unlock()
	if !known {
		return
	}

	left := g.registry.LeaveAll(client.SessionID)
	now := time.Now()
	for _, roomID := range left {
		observability.WebSocketRoomConnections.WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).Dec()
		g.publishPresence(ctx, roomID, client, "offline", &now)
		g.publishOnlineCount(ctx, roomID)
	}

	if err := g.kv.SRem(ctx, onlineUsersKey, strconv.FormatUint(uint64(client.UserID), 10)); err != nil {
		g.wsLog.LogError(ctx, client.UserID, 0, err, "online_set_remove")
	}

	observability.WebSocketConnectionsTotal.Dec()
	g.wsLog.LogDisconnect(ctx, client.UserID, client.SessionID, "connection closed")
}

func (g *Gateway) joinRoom(ctx context.Context, client *Client, roomID uint) {
	g.registry.Join(roomID, client.SessionID)
	observability.WebSocketRoomConnections.WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).Inc()
	g.publishPresence(ctx, roomID, client, "online", nil)
	g.publishOnlineCount(ctx, roomID)
}

// handleInbound dispatches one raw client frame. Panics and handler errors
// become a scoped error event on this session; they never take down the
// process or the connection.
func (g *Gateway) handleInbound(client *Client, raw []byte) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			g.wsLog.LogError(ctx, client.UserID, 0,
				fmt.Errorf("panic: %v\n%s", r, debug.Stack()), "inbound")
			g.sendError(client, 0, "internal error")
		}
	}()

	var evt inboundEnvelope
	if err := json.Unmarshal(raw, &evt); err != nil {
		g.sendError(client, 0, "malformed event")
		return
	}

	span, ctx := observability.TraceWebSocketEvent(ctx, evt.Type)
	defer span.End()
	observability.WebSocketEventsTotal.WithLabelValues(evt.Type).Inc()

	switch evt.Type {
	case EventJoin:
		g.handleJoin(ctx, client, evt.RoomID)
	case EventLeave:
		g.handleLeave(ctx, client, evt.RoomID)
	case EventTyping:
		g.handleTyping(ctx, client, evt)
	case EventMessage:
		g.handleMessage(ctx, client, evt)
	default:
		g.sendError(client, evt.RoomID, fmt.Sprintf("unknown event type %q", evt.Type))
	}
}

// handleJoin re-checks authorization on every join. Membership is granted
// only by the REST join endpoint; a bare session cannot enroll itself here.
func (g *Gateway) handleJoin(ctx context.Context, client *Client, roomID uint) {
	if roomID == 0 {
		g.sendError(client, roomID, "room_id required")
		return
	}
	allowed, err := g.membership.CanJoin(ctx, client.UserID, roomID)
	if err != nil {
		g.sendError(client, roomID, err.Error())
		return
	}
	if !allowed {
		// A previously-left membership is reactivated; anyone without an
		// entry, or banned, is refused.
		if rejoinErr := g.membership.Rejoin(ctx, client.UserID, roomID); rejoinErr != nil {
			g.sendError(client, roomID, rejoinErr.Error())
			return
		}
	}
	g.joinRoom(ctx, client, roomID)
	g.sendOnlineUsers(ctx, client)
}

func (g *Gateway) handleLeave(ctx context.Context, client *Client, roomID uint) {
	if roomID == 0 {
		g.sendError(client, roomID, "room_id required")
		return
	}
	g.registry.Leave(roomID, client.SessionID)
	observability.WebSocketRoomConnections.WithLabelValues(strconv.FormatUint(uint64(roomID), 10)).Dec()
	now := time.Now()
	g.publishPresence(ctx, roomID, client, "left", &now)
	g.publishOnlineCount(ctx, roomID)
}

// handleTyping relays the typing indicator to the other members of the room.
// Nothing is persisted and the sender never sees its own indicator.
func (g *Gateway) handleTyping(ctx context.Context, client *Client, evt inboundEnvelope) {
	if evt.RoomID == 0 {
		return
	}
	var body typingPayload
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &body); err != nil {
			g.sendError(client, evt.RoomID, "malformed typing payload")
			return
		}
	}
	g.publish(ctx, ChatChannel(evt.RoomID), Envelope{
		Type:      EventTyping,
		RoomID:    evt.RoomID,
		UserID:    client.UserID,
		Username:  client.Username,
		Avatar:    client.Avatar,
		SessionID: client.SessionID,
		Payload:   body,
	})
}

// handleMessage persists the message and fans it out. Send permission is
// checked inside the message service, so a user banned or muted since
// connecting is blocked here, on the next send, without a forced disconnect.
func (g *Gateway) handleMessage(ctx context.Context, client *Client, evt inboundEnvelope) {
	var body inboundMessage
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &body); err != nil {
			g.sendError(client, evt.RoomID, "malformed message payload")
			return
		}
	}

	msg, err := g.messages.Create(ctx, service.CreateMessageInput{
		RoomID:    evt.RoomID,
		UserID:    client.UserID,
		Content:   body.Content,
		ReplyToID: body.ReplyToID,
	})
	if err != nil {
		g.sendError(client, evt.RoomID, err.Error())
		return
	}

	g.wsLog.LogMessage(ctx, client.UserID, evt.RoomID, EventMessage)

	if g.pipeline != nil {
		if err := g.pipeline.EnqueueContentFilter(moderation.ContentFilterJob{
			MessageID: msg.ID,
			RoomID:    msg.ChatRoomID,
			UserID:    msg.UserID,
			Content:   msg.Content,
		}); err != nil {
			g.wsLog.LogError(ctx, client.UserID, evt.RoomID, err, "content_filter_enqueue")
		}
	}

	g.publish(ctx, ChatChannel(evt.RoomID), Envelope{
		Type:     EventMessage,
		RoomID:   evt.RoomID,
		UserID:   client.UserID,
		Username: client.Username,
		Avatar:   client.Avatar,
		Payload:  msg,
	})
}

func (g *Gateway) publishPresence(ctx context.Context, roomID uint, client *Client, status string, lastSeen *time.Time) {
	g.publish(ctx, PresenceChannel(roomID), Envelope{
		Type:   EventPresence,
		RoomID: roomID,
		UserID: client.UserID,
		Payload: presencePayload{
			Status:   status,
			UserID:   client.UserID,
			Username: client.Username,
			Avatar:   client.Avatar,
			LastSeen: lastSeen,
		},
	})
}

// publishOnlineCount announces the room's updated session count after a join
// or leave.
func (g *Gateway) publishOnlineCount(ctx context.Context, roomID uint) {
	g.publish(ctx, PresenceChannel(roomID), Envelope{
		Type:    EventOnlineUsers,
		RoomID:  roomID,
		Payload: onlineCountPayload{Count: g.registry.CountOnline(roomID)},
	})
}

func (g *Gateway) publish(ctx context.Context, channel string, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		g.wsLog.LogError(ctx, envelope.UserID, envelope.RoomID, err, "marshal")
		return
	}
	if err := g.kv.Publish(ctx, channel, string(payload)); err != nil {
		g.wsLog.LogError(ctx, envelope.UserID, envelope.RoomID, err, "publish")
	}
}

// PublishModerationEvent implements moderation.EventPublisher: pipeline
// outcomes travel the same pub/sub path as chat traffic.
func (g *Gateway) PublishModerationEvent(ctx context.Context, event moderation.Event) error {
	payload, err := json.Marshal(Envelope{
		Type:    EventModeration,
		RoomID:  event.RoomID,
		UserID:  event.TargetUserID,
		Payload: event,
	})
	if err != nil {
		return err
	}
	return g.kv.Publish(ctx, ModerationChannel(event.RoomID), string(payload))
}

// StartWiring subscribes this process to the chat, presence, and moderation
// channel families and relays deliveries to local sessions. Returns after
// launching the relay goroutine.
func (g *Gateway) StartWiring(ctx context.Context) {
	sub := g.kv.PSubscribe(ctx, "chat:room:*", "presence:room:*", "moderation:room:*")
	go func() {
		defer func() { _ = sub.Close() }()
		for msg := range sub.Messages() {
			roomID, _, ok := parseRoomChannel(msg.Channel)
			if !ok {
				continue
			}
			// Events carrying an origin session id (typing) are not echoed
			// back to their sender.
			var origin struct {
				SessionID string `json:"session_id"`
			}
			_ = json.Unmarshal([]byte(msg.Payload), &origin)
			g.broadcastLocal(roomID, []byte(msg.Payload), origin.SessionID)
		}
	}()
}

// broadcastLocal delivers a payload to every session joined to the room on
// this process, except the excluded origin session.
func (g *Gateway) broadcastLocal(roomID uint, payload []byte, excludeSessionID string) {
	sessionIDs := g.registry.SessionsInRoom(roomID)
	if len(sessionIDs) == 0 {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, sid := range sessionIDs {
		if sid == excludeSessionID {
			continue
		}
		if client, ok := g.sessions[sid]; ok {
			client.TrySend(payload)
		}
	}
}

// sendOnlineUsers pushes the fleet-wide online snapshot to one client.
func (g *Gateway) sendOnlineUsers(ctx context.Context, client *Client) {
	members, err := g.kv.SMembers(ctx, onlineUsersKey)
	if err != nil {
		g.wsLog.LogError(ctx, client.UserID, 0, err, "online_set_read")
		return
	}

	userIDs := make([]uint, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseUint(m, 10, 64); err == nil {
			userIDs = append(userIDs, uint(id))
		}
	}

	payload, err := json.Marshal(Envelope{
		Type:    EventOnlineUsers,
		Payload: map[string]interface{}{"user_ids": userIDs},
	})
	if err != nil {
		return
	}
	client.TrySend(payload)
}

func (g *Gateway) sendError(client *Client, roomID uint, message string) {
	payload, err := json.Marshal(Envelope{
		Type:    EventError,
		RoomID:  roomID,
		Payload: map[string]string{"message": message},
	})
	if err != nil {
		return
	}
	client.TrySend(payload)
}

// CountLocalSessions reports the number of live sessions on this process.
func (g *Gateway) CountLocalSessions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Shutdown closes every live connection after a best-effort notice.
func (g *Gateway) Shutdown(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, client := range g.sessions {
		if client.Conn != nil {
			_ = client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","payload":{"message":"Server is shutting down"}}`))
			_ = client.Conn.Close()
		}
	}
	g.sessions = make(map[string]*Client)
	return nil
}
