package server

import (
	"podium/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketChatHandler handles WebSocket connections for real-time chat.
// AuthRequired has already verified the token; the handler hands the
// connection to the gateway, which owns the session for its lifetime.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		identityVal := conn.Locals("identity")
		identity, ok := identityVal.(*auth.Identity)
		if !ok || identity == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		// Blocks until the connection drops.
		s.gateway.HandleConnection(conn, identity)
	})
}
