package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/statuspulse/statuspulse/internal/chat"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/internal/sysmon"
	"github.com/statuspulse/statuspulse/pkg/store"
)

// Sender delivers an envelope to a client, buffering when it is offline.
// *Server implements it; tests use a recording fake.
type Sender interface {
	Send(clientID string, env pipeline.Envelope)
}

// RegisterCoreHandlers wires the built-in message types into the router:
// ping, system status requests and chat. All replies flow through the sender
// so offline clients get them from the buffer on reconnect.
func RegisterCoreHandlers(router *pipeline.Router, sender Sender, monitor *sysmon.Monitor, responder chat.ResponseGenerator, cache store.Store) {
	router.Register("ping", pingHandler(sender),
		pipeline.WithPriority(pipeline.PriorityHigh),
		pipeline.WithTimeout(5*time.Second))

	router.Register("system_status_request", statusHandler(sender, monitor, cache),
		pipeline.WithPriority(pipeline.PriorityHigh),
		pipeline.WithTimeout(10*time.Second))

	router.Register("chat_message", chatHandler(sender, responder),
		pipeline.WithPriority(pipeline.PriorityNormal),
		pipeline.WithTimeout(30*time.Second))
}

func pingHandler(sender Sender) pipeline.Handler {
	return func(ctx context.Context, clientID string, data map[string]interface{}) error {
		sender.Send(clientID, pipeline.Envelope{
			Type:      "pong",
			Data:      map[string]interface{}{},
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return nil
	}
}

func statusHandler(sender Sender, monitor *sysmon.Monitor, cache store.Store) pipeline.Handler {
	return func(ctx context.Context, clientID string, data map[string]interface{}) error {
		var snap sysmon.Snapshot
		var cached bool

		ok := false
		if monitor != nil {
			snap, ok = monitor.Latest()
		}
		if !ok && cache != nil {
			raw, err := cache.Get(ctx, statusCacheKey)
			if err == nil {
				if json.Unmarshal(raw, &snap) == nil {
					ok = true
					cached = true
				}
			}
		}
		if !ok {
			return fmt.Errorf("no status snapshot available")
		}

		sender.Send(clientID, pipeline.Envelope{
			Type: "system_status",
			Data: map[string]interface{}{
				"status": snap,
				"cached": cached,
			},
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return nil
	}
}

func chatHandler(sender Sender, responder chat.ResponseGenerator) pipeline.Handler {
	return func(ctx context.Context, clientID string, data map[string]interface{}) error {
		message, _ := data["message"].(string)
		if message == "" {
			return fmt.Errorf("chat message missing text")
		}

		reply, err := responder.Generate(ctx, clientID, message)
		if err != nil {
			return fmt.Errorf("generate response: %w", err)
		}

		sender.Send(clientID, pipeline.Envelope{
			Type: "chat_response",
			Data: map[string]interface{}{
				"response": reply,
				"message":  message,
			},
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return nil
	}
}
