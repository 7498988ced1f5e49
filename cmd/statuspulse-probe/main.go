// Command statuspulse-probe is a smoke-test websocket client: it connects to
// a running server, exercises the core message types and prints every frame
// it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var (
	addr     = flag.String("addr", "ws://localhost:8000/ws", "WebSocket server URL")
	clientID = flag.String("client-id", "probe", "Client id to connect as")
	token    = flag.String("token", "", "JWT token when the server requires auth")
	chat     = flag.String("chat", "", "Optional chat message to send")
	interval = flag.Duration("interval", 10*time.Second, "Ping interval")
)

type envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

func main() {
	flag.Parse()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	} else {
		url += "?client_id=" + *clientID
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Read failed: %v", err)
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("<- unparseable frame: %s", data)
				continue
			}
			pretty, _ := json.MarshalIndent(env.Data, "", "  ")
			fmt.Printf("<- %s %s\n", env.Type, pretty)
		}
	}()

	send := func(env envelope) {
		env.Timestamp = time.Now().Format(time.RFC3339)
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("Write failed: %v", err)
		}
	}

	send(envelope{Type: "ping"})
	send(envelope{Type: "system_status_request"})
	if *chat != "" {
		send(envelope{Type: "chat_message", Data: map[string]interface{}{"message": *chat}})
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			send(envelope{Type: "ping"})
		case <-done:
			return
		case <-quit:
			log.Println("Closing")
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
