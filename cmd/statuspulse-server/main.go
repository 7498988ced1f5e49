package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/statuspulse/statuspulse/internal/api"
	"github.com/statuspulse/statuspulse/internal/auth"
	"github.com/statuspulse/statuspulse/internal/chat"
	"github.com/statuspulse/statuspulse/internal/config"
	"github.com/statuspulse/statuspulse/internal/connection"
	zaplog "github.com/statuspulse/statuspulse/internal/log/driver/zaplog"
	"github.com/statuspulse/statuspulse/internal/metrics"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/internal/store/driver/memory"
	"github.com/statuspulse/statuspulse/internal/store/driver/redis"
	"github.com/statuspulse/statuspulse/internal/sysmon"
	"github.com/statuspulse/statuspulse/internal/transport"
	"github.com/statuspulse/statuspulse/pkg/log"
	"github.com/statuspulse/statuspulse/pkg/store"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	Version   = "v1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("StatusPulse Server %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	st, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", log.Error(err))
	}
	defer st.Close()

	m := metrics.New()

	router := pipeline.NewRouter(&pipeline.RouterConfig{
		QueueSize:        cfg.Pipeline.QueueSize,
		MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
		DefaultTimeout:   cfg.Pipeline.DefaultTimeout,
		DefaultRateLimit: cfg.Pipeline.DefaultRateLimit,
		IdlePollInterval: cfg.Pipeline.IdlePollInterval,
	}, logger)

	router.SubscribeMessages(pipeline.MessageObserverFunc(func(msg *pipeline.QueuedMessage) {
		m.ObserveMessage(msg.Type, string(msg.Status), msg.EndedAt.Sub(msg.StartedAt))
		m.SetQueueSize(router.Queue().Stats().TotalSize)
		m.SetActiveProcessors(router.Processor().ActiveCount())
	}))

	var jwtManager *auth.JWTManager
	if cfg.Auth.Enabled {
		jwtManager, err = auth.NewJWTManager(&auth.Config{
			Secret:        cfg.Auth.JWTSecret,
			TokenDuration: cfg.Auth.TokenDuration,
			Issuer:        cfg.Auth.Issuer,
		})
		if err != nil {
			logger.Fatal("Failed to initialize auth", log.Error(err))
		}
	}

	wsServer := transport.NewServer(&transport.Config{
		Path:    cfg.WebSocket.Path,
		Session: sessionConfig(cfg),
	}, router, jwtManager, m, st, logger)
	defer wsServer.Close()

	monitor := sysmon.NewMonitor(&sysmon.Config{
		Interval:             cfg.Monitor.Interval,
		CPUAlertPercent:      cfg.Monitor.CPUAlertPercent,
		MemoryAlertPercent:   cfg.Monitor.MemoryAlertPercent,
		DiskAlertPercent:     cfg.Monitor.DiskAlertPercent,
		BroadcastMinInterval: cfg.Monitor.BroadcastMinInterval,
	}, nil, wsServer, logger)

	responder := chat.NewOfflineResponder(monitor)
	transport.RegisterCoreHandlers(router, wsServer, monitor, responder, st)

	if err := router.Start(); err != nil {
		logger.Fatal("Failed to start pipeline", log.Error(err))
	}
	defer router.Stop()

	monitor.Start()
	defer monitor.Stop()

	mux := http.NewServeMux()
	mux.Handle(cfg.WebSocket.Path, wsServer)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("StatusPulse listening",
			log.String("address", cfg.Server.Address),
			log.String("ws_path", cfg.WebSocket.Path))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", log.Error(err))
		}
	}()

	var adminServer *api.Server
	if cfg.AdminAPI.Enabled {
		adminServer = api.NewServer(&api.Config{Address: cfg.AdminAPI.Address},
			router, wsServer, monitor, m, st, logger)
		go func() {
			if err := adminServer.Start(); err != nil {
				logger.Error("Admin API failed", log.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("Forced shutdown", log.Error(err))
	}
	if adminServer != nil {
		if err := adminServer.Stop(ctx); err != nil {
			logger.Warn("Admin API shutdown failed", log.Error(err))
		}
	}
}

func newLogger(cfg *config.Config) (*zaplog.ZapLogger, error) {
	return zaplog.New(&zaplog.Config{
		Level:        log.ParseLevel(cfg.Logging.Level),
		EnableCaller: cfg.Logging.EnableCaller,
		Development:  cfg.Logging.Development,
	})
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		return redis.New(&store.Config{
			Address:   cfg.Store.Redis.Address,
			Password:  cfg.Store.Redis.Password,
			Database:  cfg.Store.Redis.Database,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
			Timeout:   cfg.Store.Redis.Timeout,
		})
	default:
		return memory.New(nil)
	}
}

func sessionConfig(cfg *config.Config) *connection.ManagerConfig {
	return &connection.ManagerConfig{
		Scheduler: &connection.SchedulerConfig{
			Strategy:     connection.Strategy(cfg.Reconnection.Strategy),
			MaxAttempts:  cfg.Reconnection.MaxAttempts,
			InitialDelay: cfg.Reconnection.InitialDelay,
			MaxDelay:     cfg.Reconnection.MaxDelay,
			Multiplier:   cfg.Reconnection.Multiplier,
			Jitter:       cfg.Reconnection.Jitter,
		},
		Heartbeat: &connection.MonitorConfig{
			Interval: cfg.Heartbeat.Interval,
			Timeout:  cfg.Heartbeat.Timeout,
		},
		Buffer: &connection.BufferConfig{
			CacheTTL:   cfg.Offline.CacheTTL,
			QueueLimit: cfg.Offline.QueueLimit,
		},
	}
}
