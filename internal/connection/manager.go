package connection

import (
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
	"github.com/statuspulse/statuspulse/pkg/store"
)

// ManagerConfig represents configuration for a connection manager.
type ManagerConfig struct {
	Scheduler *SchedulerConfig
	Heartbeat *MonitorConfig
	Buffer    *BufferConfig
}

// DefaultManagerConfig returns a default manager configuration.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		Scheduler: DefaultSchedulerConfig(),
		Heartbeat: DefaultMonitorConfig(),
		Buffer:    DefaultBufferConfig(),
	}
}

// Info is a point-in-time summary of a managed connection.
type Info struct {
	Current           State     `json:"current_state"`
	Previous          State     `json:"previous_state"`
	ChangedAt         time.Time `json:"changed_at"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	OfflineMode       bool      `json:"offline_mode"`
	QueuedMessages    int       `json:"queued_messages"`
}

// Manager composes the state machine, reconnection scheduler, heartbeat
// monitor and offline buffer into one resilient connection. The pieces are
// wired through state observers: reaching StateConnected resets the attempt
// counter, starts heartbeats and flushes the offline queue; losing the
// connection stops heartbeats and schedules a reconnect.
type Manager struct {
	sm        *StateMachine
	scheduler *Scheduler
	heartbeat *Monitor
	buffer    *OfflineBuffer

	receiver FlushReceiver
	logger   log.Logger

	unsubscribe func()
}

// NewManager creates a connection manager. The pinger is used by the
// heartbeat monitor to probe the peer; the receiver gets the offline queue
// contents when connectivity returns. Both may be nil.
func NewManager(config *ManagerConfig, cache store.Store, pinger Pinger, receiver FlushReceiver, logger log.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if logger == nil {
		logger = log.Nop()
	}

	sm := NewStateMachine(logger)
	m := &Manager{
		sm:        sm,
		scheduler: NewScheduler(config.Scheduler, sm, logger),
		heartbeat: NewMonitor(config.Heartbeat, sm, pinger, logger),
		buffer:    NewOfflineBuffer(config.Buffer, cache, logger),
		receiver:  receiver,
		logger:    logger.With(log.String("component", "connection_manager")),
	}
	m.unsubscribe = sm.Subscribe(ObserverFunc(m.onStateChange))
	return m
}

// onStateChange runs the entry actions for each state. It executes outside
// the state machine's lock, so the actions may trigger further transitions.
func (m *Manager) onStateChange(t Transition) {
	switch t.To {
	case StateConnected:
		m.scheduler.ResetAttempts()
		m.heartbeat.OnHeartbeatReceived()
		m.heartbeat.Start()
		if n := m.buffer.Flush(m.receiver); n > 0 {
			m.logger.Info("Delivered buffered messages", log.Int("count", n))
		}
	case StateDisconnected:
		m.heartbeat.Stop()
		m.scheduler.Schedule()
	case StateOffline:
		m.heartbeat.Stop()
	case StateFailed:
		m.heartbeat.Stop()
	}
}

// Connected reports a successfully established connection.
func (m *Manager) Connected() {
	m.sm.SetState(StateConnected, "connection_established")
}

// Disconnected reports a lost connection with the given reason.
func (m *Manager) Disconnected(reason string) {
	m.sm.SetState(StateDisconnected, reason)
}

// EnterOffline switches to offline mode: heartbeats stop and outbound
// messages are buffered instead of sent.
func (m *Manager) EnterOffline(reason string) {
	m.sm.SetState(StateOffline, reason)
}

// ForceReconnect abandons the failed state, clears the attempt counter and
// schedules a fresh attempt.
func (m *Manager) ForceReconnect() {
	m.scheduler.Force()
}

// OnHeartbeatReceived forwards a heartbeat response to the monitor.
func (m *Manager) OnHeartbeatReceived() {
	m.heartbeat.OnHeartbeatReceived()
}

// Info returns the current connection summary.
func (m *Manager) Info() Info {
	return Info{
		Current:           m.sm.Current(),
		Previous:          m.sm.Previous(),
		ChangedAt:         m.sm.ChangedAt(),
		ReconnectAttempts: m.scheduler.Attempts(),
		OfflineMode:       m.sm.Current() == StateOffline,
		QueuedMessages:    m.buffer.Len(),
	}
}

// States exposes the state machine for observers and status surfaces.
func (m *Manager) States() *StateMachine {
	return m.sm
}

// Buffer exposes the offline buffer for callers that cache status snapshots
// or queue outbound messages.
func (m *Manager) Buffer() *OfflineBuffer {
	return m.buffer
}

// Scheduler exposes the reconnection scheduler.
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Heartbeat exposes the heartbeat monitor.
func (m *Manager) Heartbeat() *Monitor {
	return m.heartbeat
}

// Close tears down the manager: the observer is removed and the scheduler
// and heartbeat monitor are stopped.
func (m *Manager) Close() {
	m.unsubscribe()
	m.scheduler.Stop()
	m.heartbeat.Stop()
}
