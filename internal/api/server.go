package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/statuspulse/statuspulse/internal/connection"
	"github.com/statuspulse/statuspulse/internal/metrics"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/internal/sysmon"
	"github.com/statuspulse/statuspulse/pkg/log"
	"github.com/statuspulse/statuspulse/pkg/store"
)

// SessionSurface exposes the transport's per-client connection sessions.
// *transport.Server implements it.
type SessionSurface interface {
	Sessions() map[string]connection.Info
	SessionInfo(clientID string) (connection.Info, bool)
	ForceReconnect(clientID string) bool
	ClientCount() int
}

// Config represents configuration for the admin API server.
type Config struct {
	// Address is the listen address, e.g. ":9090".
	Address string
}

// Server is the admin HTTP surface: health, status, sessions, prometheus
// exposition and a force-reconnect hook.
type Server struct {
	config   *Config
	router   *pipeline.Router
	sessions SessionSurface
	monitor  *sysmon.Monitor
	metrics  *metrics.Metrics
	store    store.Store
	logger   log.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer creates the admin API server. monitor and store may be nil.
func NewServer(config *Config, router *pipeline.Router, sessions SessionSurface, monitor *sysmon.Monitor, m *metrics.Metrics, st store.Store, logger log.Logger) *Server {
	if config == nil {
		config = &Config{Address: ":9090"}
	}
	if logger == nil {
		logger = log.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:   config,
		router:   router,
		sessions: sessions,
		monitor:  monitor,
		metrics:  m,
		store:    st,
		logger:   logger.With(log.String("component", "admin_api")),
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/sessions", s.handleSessions)
	s.engine.GET("/sessions/:client_id", s.handleSession)
	s.engine.POST("/sessions/:client_id/reconnect", s.handleForceReconnect)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// handleHealth reports process liveness plus store health when configured.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}

	if s.store != nil {
		health := s.store.Health()
		resp["store"] = health
		if health.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleStatus returns the pipeline status, connected client count and the
// latest system snapshot.
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"pipeline": s.router.Status(),
	}
	if s.sessions != nil {
		resp["connected_clients"] = s.sessions.ClientCount()
	}
	if s.monitor != nil {
		if snap, ok := s.monitor.Latest(); ok {
			resp["system"] = snap
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSessions(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.Sessions()})
}

func (s *Server) handleSession(c *gin.Context) {
	clientID := c.Param("client_id")
	if s.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown client"})
		return
	}
	info, ok := s.sessions.SessionInfo(clientID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown client"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleForceReconnect kicks a failed session back into the retry cycle.
func (s *Server) handleForceReconnect(c *gin.Context) {
	clientID := c.Param("client_id")
	if s.sessions == nil || !s.sessions.ForceReconnect(clientID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown client"})
		return
	}
	s.logger.Info("Forced reconnection", log.String("client_id", clientID))
	c.JSON(http.StatusOK, gin.H{"status": "reconnecting", "client_id": clientID})
}

// Handler exposes the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. It returns once the listener fails or Stop is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info("Admin API listening", log.String("address", s.config.Address))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
