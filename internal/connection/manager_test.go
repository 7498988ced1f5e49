package connection

import (
	"testing"
	"time"

	"github.com/statuspulse/statuspulse/internal/store/driver/memory"
)

func testManager(t *testing.T, cfg *ManagerConfig, receiver FlushReceiver) *Manager {
	t.Helper()
	cache, err := memory.New(nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	if cfg == nil {
		cfg = &ManagerConfig{
			Scheduler: &SchedulerConfig{
				Strategy:     StrategyImmediate,
				MaxAttempts:  3,
				InitialDelay: time.Millisecond,
				MaxDelay:     10 * time.Millisecond,
				Multiplier:   2.0,
			},
			Heartbeat: &MonitorConfig{Interval: time.Minute},
			Buffer:    DefaultBufferConfig(),
		}
	}
	m := NewManager(cfg, cache, nil, receiver, nil)
	t.Cleanup(m.Close)
	return m
}

func TestManager_ConnectFlushesBufferedMessages(t *testing.T) {
	var calls int
	var batch []QueuedItem
	m := testManager(t, nil, FlushReceiverFunc(func(items []QueuedItem) {
		calls++
		batch = items
	}))

	m.Buffer().QueueMessage(map[string]interface{}{"seq": 0})
	m.Buffer().QueueMessage(map[string]interface{}{"seq": 1})
	m.Buffer().QueueMessage(map[string]interface{}{"seq": 2})

	m.Connected()

	if calls != 1 {
		t.Errorf("Expected one flush notification, got %d", calls)
	}
	if len(batch) != 3 {
		t.Errorf("Expected 3 buffered messages delivered, got %d", len(batch))
	}
	if m.Buffer().Len() != 0 {
		t.Errorf("Queue should be empty after flush, got %d", m.Buffer().Len())
	}
}

func TestManager_ConnectResetsAttempts(t *testing.T) {
	m := testManager(t, nil, nil)

	// Leave the initial disconnected state first; a same-state Disconnected
	// would be a no-op and never schedule anything.
	m.Connected()
	m.Disconnected("link_down")
	waitForState(t, m.States(), StateConnecting)
	if m.Scheduler().Attempts() != 1 {
		t.Fatalf("Expected 1 attempt, got %d", m.Scheduler().Attempts())
	}

	m.Connected()
	if m.Scheduler().Attempts() != 0 {
		t.Errorf("Connected should reset attempts, got %d", m.Scheduler().Attempts())
	}
}

func TestManager_DisconnectSchedulesReconnect(t *testing.T) {
	m := testManager(t, nil, nil)

	m.Connected()
	m.Disconnected("link_down")

	// Immediate strategy: disconnected triggers reconnecting, then the
	// attempt moves to connecting.
	waitForState(t, m.States(), StateConnecting)

	history := m.States().History()
	var sawReconnecting bool
	for _, tr := range history {
		if tr.To == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Error("Expected a reconnecting transition in the history")
	}
}

func TestManager_ExhaustionThenForce(t *testing.T) {
	m := testManager(t, nil, nil)

	// Fail every attempt until the budget (3) is spent.
	m.Connected()
	m.Disconnected("link_down")
	for i := 0; i < 3; i++ {
		waitForState(t, m.States(), StateConnecting)
		m.Disconnected("dial_failed")
	}

	waitForState(t, m.States(), StateFailed)

	m.ForceReconnect()
	waitForState(t, m.States(), StateConnecting)
	if got := m.Scheduler().Attempts(); got != 1 {
		t.Errorf("Force should restart the attempt counter, got %d", got)
	}
}

func TestManager_OfflineMode(t *testing.T) {
	m := testManager(t, nil, nil)

	m.Connected()
	m.EnterOffline("user_requested")

	info := m.Info()
	if !info.OfflineMode {
		t.Error("Info should report offline mode")
	}
	if info.Current != StateOffline {
		t.Errorf("Expected state offline, got %s", info.Current)
	}

	m.Buffer().QueueMessage(map[string]interface{}{"k": "v"})
	if m.Info().QueuedMessages != 1 {
		t.Errorf("Expected 1 queued message in info, got %d", m.Info().QueuedMessages)
	}

	// Back online: buffered traffic is delivered.
	m.Connected()
	info = m.Info()
	if info.OfflineMode {
		t.Error("Offline mode should clear on reconnect")
	}
	if info.QueuedMessages != 0 {
		t.Errorf("Queue should drain on reconnect, got %d", info.QueuedMessages)
	}
}

func TestManager_Info(t *testing.T) {
	m := testManager(t, nil, nil)

	info := m.Info()
	if info.Current != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", info.Current)
	}

	m.Connected()
	info = m.Info()
	if info.Current != StateConnected || info.Previous != StateDisconnected {
		t.Errorf("Unexpected info after connect: %+v", info)
	}
	if info.ChangedAt.IsZero() {
		t.Error("ChangedAt should be set")
	}
}

func TestManager_HeartbeatTimeoutTriggersReconnect(t *testing.T) {
	cfg := &ManagerConfig{
		Scheduler: &SchedulerConfig{
			Strategy:     StrategyExponentialBackoff,
			MaxAttempts:  5,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2.0,
		},
		Heartbeat: &MonitorConfig{
			Interval: 15 * time.Millisecond,
			Timeout:  40 * time.Millisecond,
		},
		Buffer: DefaultBufferConfig(),
	}
	m := testManager(t, cfg, nil)

	m.Connected()

	// No heartbeats arrive, so the monitor declares the connection dead and
	// the disconnect entry action schedules a reconnect.
	waitForState(t, m.States(), StateConnecting)

	var sawTimeout bool
	for _, tr := range m.States().History() {
		if tr.To == StateDisconnected && tr.Reason == "heartbeat_timeout" {
			sawTimeout = true
		}
	}
	if !sawTimeout {
		t.Error("Expected a heartbeat_timeout disconnect in the history")
	}
}
