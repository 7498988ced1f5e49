package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/statuspulse/internal/auth"
	"github.com/statuspulse/statuspulse/internal/connection"
	"github.com/statuspulse/statuspulse/internal/metrics"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/internal/sysmon"
	"github.com/statuspulse/statuspulse/pkg/log"
	"github.com/statuspulse/statuspulse/pkg/store"
)

// statusCacheKey is where the latest broadcast snapshot is cached so clients
// reconnecting after downtime get data immediately.
const statusCacheKey = "status:latest"

// Config represents configuration for the websocket server.
type Config struct {
	// Path is the websocket endpoint path, e.g. "/ws".
	Path string
	// Session configures the per-client connection manager.
	Session *connection.ManagerConfig
}

// Server upgrades websocket connections and binds each client to a session:
// a connection manager that survives socket drops, so offline-buffered
// messages reach the client when it comes back.
type Server struct {
	config   *Config
	router   *pipeline.Router
	jwt      *auth.JWTManager
	metrics  *metrics.Metrics
	cache    store.Store
	hub      *Hub
	logger   log.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*connection.Manager
}

// NewServer creates a websocket server. jwt may be nil to disable client
// authentication; cache backs the per-session offline buffers.
func NewServer(config *Config, router *pipeline.Router, jwt *auth.JWTManager, m *metrics.Metrics, cache store.Store, logger log.Logger) *Server {
	if config == nil {
		config = &Config{Path: "/ws"}
	}
	if config.Session == nil {
		config.Session = connection.DefaultManagerConfig()
	}
	if config.Session.Buffer == nil {
		config.Session.Buffer = connection.DefaultBufferConfig()
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Server{
		config:  config,
		router:  router,
		jwt:     jwt,
		metrics: m,
		cache:   cache,
		hub:     NewHub(logger),
		logger:  logger.With(log.String("component", "ws_server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*connection.Manager),
	}
}

// ServeHTTP implements http.Handler: it authenticates (when enabled),
// upgrades the connection and starts the client pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID, err := s.authenticate(r)
	if err != nil {
		s.logger.Warn("Rejected websocket client", log.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", log.Error(err))
		return
	}

	session := s.session(clientID)
	client := newClient(clientID, conn, session, s, s.logger)
	s.hub.add(client)
	s.metrics.ClientConnected()

	go client.writePump()
	go client.readPump()

	// Connected entry actions fire now: heartbeats start and any messages
	// buffered while the client was away are flushed down the new socket.
	session.Connected()
}

// authenticate resolves the client identity. With JWT enabled the token comes
// from the "token" query parameter; otherwise the client supplies an id or
// gets a generated one.
func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.jwt != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			return "", errors.New("transport: missing token")
		}
		claims, err := s.jwt.Verify(token)
		if err != nil {
			return "", err
		}
		return claims.ClientID, nil
	}

	if id := r.URL.Query().Get("client_id"); id != "" {
		return id, nil
	}
	return newClientID(), nil
}

// session returns the connection manager for a client id, creating it on
// first sight. Sessions outlive sockets: a reconnecting client reclaims its
// buffered state.
func (s *Server) session(clientID string) *connection.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[clientID]; ok {
		return session
	}

	pinger := connection.PingerFunc(func() error {
		if c, ok := s.hub.get(clientID); ok {
			return c.requestPing()
		}
		return errors.New("transport: client not connected")
	})
	receiver := connection.FlushReceiverFunc(func(items []connection.QueuedItem) {
		s.deliverFlush(clientID, items)
	})

	session := connection.NewManager(s.config.Session, s.cache, pinger, receiver, s.logger)
	session.States().Subscribe(connection.ObserverFunc(func(t connection.Transition) {
		s.metrics.ObserveTransition(string(t.To))
	}))
	s.sessions[clientID] = session
	return session
}

// deliverFlush pushes the offline batch to the client as one frame.
func (s *Server) deliverFlush(clientID string, items []connection.QueuedItem) {
	payload := make([]map[string]interface{}, len(items))
	for i, item := range items {
		payload[i] = map[string]interface{}{
			"data":      item.Data,
			"queued_at": item.QueuedAt.Format(time.RFC3339),
		}
	}
	s.sendEnvelope(clientID, pipeline.Envelope{
		Type:      "buffered_messages",
		Data:      map[string]interface{}{"messages": payload, "count": len(items)},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// clientGone runs when a client's read pump exits.
func (s *Server) clientGone(c *Client) {
	c.closeSend()
	s.hub.remove(c)
	s.metrics.ClientDisconnected()
	c.session.Disconnected("connection_closed")
	s.metrics.SetOfflineQueueSize(s.offlineDepth())
}

// Send delivers an envelope to one client, or buffers it in the client's
// offline queue when the socket is down.
func (s *Server) Send(clientID string, env pipeline.Envelope) {
	if s.sendEnvelope(clientID, env) {
		return
	}
	s.session(clientID).Buffer().QueueMessage(map[string]interface{}{
		"type": env.Type,
		"data": env.Data,
	})
	s.metrics.SetOfflineQueueSize(s.offlineDepth())
}

func (s *Server) sendEnvelope(clientID string, env pipeline.Envelope) bool {
	c, ok := s.hub.get(clientID)
	if !ok {
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("Marshal envelope failed", log.Error(err))
		return true // do not buffer unmarshalable payloads
	}
	return c.enqueue(data)
}

// BroadcastStatus implements sysmon.Broadcaster: the snapshot goes to every
// connected client and into the status cache for reconnecting ones.
func (s *Server) BroadcastStatus(snap sysmon.Snapshot, alerts []sysmon.Alert) {
	env := pipeline.Envelope{
		Type: "system_status",
		Data: map[string]interface{}{
			"status": snap,
			"alerts": alerts,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.hub.Broadcast(data)

	if s.cache != nil {
		raw, err := json.Marshal(snap)
		if err == nil {
			ttl := s.config.Session.Buffer.CacheTTL
			if err := s.cache.Set(context.Background(), statusCacheKey, raw, ttl); err != nil {
				s.logger.Warn("Status cache write failed", log.Error(err))
			}
		}
	}
}

// SessionInfo returns the connection summary for one client, if a session
// exists.
func (s *Server) SessionInfo(clientID string) (connection.Info, bool) {
	s.mu.Lock()
	session, ok := s.sessions[clientID]
	s.mu.Unlock()
	if !ok {
		return connection.Info{}, false
	}
	return session.Info(), true
}

// Sessions returns the connection summary for every known client.
func (s *Server) Sessions() map[string]connection.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]connection.Info, len(s.sessions))
	for id, session := range s.sessions {
		out[id] = session.Info()
	}
	return out
}

// ForceReconnect forces the session for a client out of the failed state.
func (s *Server) ForceReconnect(clientID string) bool {
	s.mu.Lock()
	session, ok := s.sessions[clientID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	session.ForceReconnect()
	return true
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.Count()
}

// observeRejection maps a submit error onto the rejection counter.
func (s *Server) observeRejection(err error) {
	switch {
	case errors.Is(err, pipeline.ErrQueueRejected):
		s.metrics.ObserveRejection("queue")
	case errors.Is(err, pipeline.ErrUnknownMessageType):
		s.metrics.ObserveRejection("unknown_type")
	}
}

// offlineDepth sums the buffered message counts across sessions.
func (s *Server) offlineDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	for _, session := range s.sessions {
		total += session.Buffer().Len()
	}
	return total
}

// newClientID generates an id for clients that connect without one.
func newClientID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("client_%d", time.Now().UnixNano())
	}
	return "client_" + hex.EncodeToString(buf[:])
}

// Close tears down every session and disconnects all clients.
func (s *Server) Close() {
	s.hub.CloseAll()

	s.mu.Lock()
	sessions := make([]*connection.Manager, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*connection.Manager)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
