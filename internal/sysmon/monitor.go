package sysmon

import (
	"context"
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// Alert flags a resource crossing its configured threshold.
type Alert struct {
	Resource  string    `json:"resource"`
	Percent   float64   `json:"percent"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster receives status updates for fan-out to connected clients.
type Broadcaster interface {
	BroadcastStatus(snap Snapshot, alerts []Alert)
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(snap Snapshot, alerts []Alert)

// BroadcastStatus implements Broadcaster.
func (f BroadcasterFunc) BroadcastStatus(snap Snapshot, alerts []Alert) { f(snap, alerts) }

// Config represents configuration for the system monitor.
type Config struct {
	// Interval between samples.
	Interval time.Duration
	// Alert thresholds in percent; zero disables the check.
	CPUAlertPercent    float64
	MemoryAlertPercent float64
	DiskAlertPercent   float64
	// BroadcastMinInterval throttles no-alert broadcasts so idle systems do
	// not spam connected clients.
	BroadcastMinInterval time.Duration
}

// DefaultConfig returns a default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:             5 * time.Second,
		CPUAlertPercent:      90,
		MemoryAlertPercent:   90,
		DiskAlertPercent:     95,
		BroadcastMinInterval: 30 * time.Second,
	}
}

// Monitor periodically samples the provider and pushes status updates to the
// broadcaster. Alerted samples always broadcast; quiet samples are throttled
// to BroadcastMinInterval.
type Monitor struct {
	config      *Config
	provider    Provider
	broadcaster Broadcaster
	logger      log.Logger

	mu            sync.Mutex
	latest        Snapshot
	hasLatest     bool
	lastBroadcast time.Time
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewMonitor creates a system monitor.
func NewMonitor(config *Config, provider Provider, broadcaster Broadcaster, logger log.Logger) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if provider == nil {
		provider = NewGopsutilProvider()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Monitor{
		config:      config,
		provider:    provider,
		broadcaster: broadcaster,
		logger:      logger.With(log.String("component", "sysmon")),
	}
}

// Start begins sampling. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

// Latest returns the most recent snapshot, if one has been taken.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.hasLatest
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	snap, err := m.provider.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("System sample failed", log.Error(err))
		return
	}

	alerts := m.checkAlerts(snap)

	m.mu.Lock()
	m.latest = snap
	m.hasLatest = true
	throttled := len(alerts) == 0 &&
		time.Since(m.lastBroadcast) < m.config.BroadcastMinInterval
	if !throttled {
		m.lastBroadcast = time.Now()
	}
	m.mu.Unlock()

	for _, a := range alerts {
		m.logger.Warn("Resource threshold exceeded",
			log.String("resource", a.Resource),
			log.Float64("percent", a.Percent),
			log.Float64("threshold", a.Threshold))
	}

	if throttled || m.broadcaster == nil {
		return
	}
	m.broadcaster.BroadcastStatus(snap, alerts)
}

func (m *Monitor) checkAlerts(snap Snapshot) []Alert {
	var alerts []Alert
	check := func(resource string, percent, threshold float64) {
		if threshold > 0 && percent >= threshold {
			alerts = append(alerts, Alert{
				Resource:  resource,
				Percent:   percent,
				Threshold: threshold,
				Timestamp: snap.Timestamp,
			})
		}
	}
	check("cpu", snap.CPUPercent, m.config.CPUAlertPercent)
	check("memory", snap.MemoryPercent, m.config.MemoryAlertPercent)
	check("disk", snap.DiskPercent, m.config.DiskAlertPercent)
	return alerts
}
