// Package main provides a manual smoke-test client for the chat WebSocket
// gateway. It connects with a token, joins a room, optionally sends one
// message, and prints every event it receives until interrupted.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    string      `json:"type"`
	RoomID  uint        `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

func main() {
	host := flag.String("host", "localhost:8480", "API server host")
	token := flag.String("token", "", "Bearer token for authentication")
	roomID := flag.Uint("room", 0, "Room ID to join")
	message := flag.String("message", "", "Optional message to send after joining")
	flag.Parse()

	if *token == "" || *roomID == 0 {
		log.Fatal("both -token and -room are required")
	}

	u := url.URL{Scheme: "ws", Host: *host, Path: "/api/ws/chat", RawQuery: "token=" + *token}
	log.Printf("Connecting to %s...", u.String())

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("❌ Dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = conn.Close() }()
	log.Println("✅ Connected")

	// Print everything the gateway sends.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("<< %s", raw)
		}
	}()

	send := func(e envelope) {
		raw, err := json.Marshal(e)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Fatalf("write: %v", err)
		}
		log.Printf(">> %s", raw)
	}

	send(envelope{Type: "chat:join", RoomID: *roomID})

	if *message != "" {
		// Give the join a moment to settle so the send is not refused.
		time.Sleep(250 * time.Millisecond)
		send(envelope{Type: "chat:message", RoomID: *roomID,
			Payload: map[string]string{"content": *message}})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case <-interrupt:
		log.Println("Closing connection...")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
