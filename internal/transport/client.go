package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/statuspulse/internal/connection"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection plus its outbound queue.
type Client struct {
	id      string
	conn    *websocket.Conn
	server  *Server
	session *connection.Manager
	logger  log.Logger

	send chan []byte
	ping chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id string, conn *websocket.Conn, session *connection.Manager, server *Server, logger log.Logger) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		server:  server,
		session: session,
		logger:  logger.With(log.String("client_id", id)),
		send:    make(chan []byte, sendBuffer),
		ping:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. It reports false when the client
// is too slow and the buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// requestPing asks the write pump to send a ping control frame. Used by the
// session heartbeat monitor.
func (c *Client) requestPing() error {
	select {
	case c.ping <- struct{}{}:
		return nil
	case <-c.closed:
		return errors.New("transport: client closed")
	default:
		return nil
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readPump decodes inbound envelopes and routes them through the pipeline.
// Pong frames feed the session heartbeat monitor.
func (c *Client) readPump() {
	defer func() {
		c.server.clientGone(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.OnHeartbeatReceived()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Read failed", log.Error(err))
			}
			return
		}

		var env pipeline.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("", "malformed message")
			continue
		}
		if env.Type == "" {
			c.sendError(env.MessageID, "missing message type")
			continue
		}

		// Inline heartbeat for clients that cannot send pong frames.
		if env.Type == "heartbeat" {
			c.session.OnHeartbeatReceived()
			continue
		}

		if _, err := c.server.router.Submit(c.id, env); err != nil {
			c.server.observeRejection(err)
			c.sendError(env.MessageID, err.Error())
		}
	}
}

// writePump drains the send queue onto the socket and emits ping frames on
// request from the heartbeat monitor.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Write failed", log.Error(err))
				return
			}
		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.server.metrics.HeartbeatSent()
		case <-c.closed:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) sendError(messageID, detail string) {
	env := pipeline.Envelope{
		Type: "error",
		Data: map[string]interface{}{
			"detail":     detail,
			"message_id": messageID,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(data)
}
