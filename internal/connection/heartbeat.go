package connection

import (
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// Pinger sends a heartbeat probe to the peer. The transport layer implements
// this with a websocket ping frame.
type Pinger interface {
	SendPing() error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func() error

// SendPing implements Pinger.
func (f PingerFunc) SendPing() error { return f() }

// MonitorConfig represents configuration for the heartbeat monitor. A zero
// Timeout defaults to twice the interval.
type MonitorConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultMonitorConfig returns a default monitor configuration.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Interval: 30 * time.Second,
	}
}

// Monitor sends periodic heartbeats and watches for responses. When no
// heartbeat response arrives within the timeout it declares the connection
// dead by transitioning the state machine to StateDisconnected.
type Monitor struct {
	config *MonitorConfig
	sm     *StateMachine
	pinger Pinger
	logger log.Logger

	mu       sync.Mutex
	lastBeat time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a heartbeat monitor bound to the state machine.
func NewMonitor(config *MonitorConfig, sm *StateMachine, pinger Pinger, logger log.Logger) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * config.Interval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Monitor{
		config: config,
		sm:     sm,
		pinger: pinger,
		logger: logger.With(log.String("component", "heartbeat")),
	}
}

// Start begins the heartbeat loop. Starting an already running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.lastBeat = time.Now()
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(stopCh)
}

// Stop halts the heartbeat loop. Stopping an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopCh == nil {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.mu.Unlock()

	m.wg.Wait()
}

// OnHeartbeatReceived records a heartbeat response from the peer.
func (m *Monitor) OnHeartbeatReceived() {
	m.mu.Lock()
	m.lastBeat = time.Now()
	m.mu.Unlock()
}

// LastBeat returns when the last heartbeat response arrived.
func (m *Monitor) LastBeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBeat
}

func (m *Monitor) loop(stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.expired() {
				m.logger.Warn("Heartbeat timed out",
					log.Duration("timeout", m.config.Timeout))
				// Mark the monitor stopped before raising the transition:
				// observers on StateDisconnected may call Stop, which must
				// not wait on this very goroutine.
				m.mu.Lock()
				if m.stopCh == stopCh {
					m.stopCh = nil
				}
				m.mu.Unlock()
				m.sm.SetState(StateDisconnected, "heartbeat_timeout")
				return
			}
			if m.pinger != nil {
				if err := m.pinger.SendPing(); err != nil {
					m.logger.Warn("Heartbeat ping failed", log.Error(err))
				}
			}
		case <-stopCh:
			return
		}
	}
}

func (m *Monitor) expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastBeat) > m.config.Timeout
}
