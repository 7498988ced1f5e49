package sysmon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func cannedProvider(cpu float64) Provider {
	return ProviderFunc(func(ctx context.Context) (Snapshot, error) {
		return Snapshot{
			CPUPercent:    cpu,
			MemoryPercent: 40,
			DiskPercent:   50,
			Timestamp:     time.Now(),
		}, nil
	})
}

func TestMonitor_BroadcastsAlerts(t *testing.T) {
	got := make(chan []Alert, 16)
	m := NewMonitor(&Config{
		Interval:             10 * time.Millisecond,
		CPUAlertPercent:      90,
		MemoryAlertPercent:   90,
		DiskAlertPercent:     95,
		BroadcastMinInterval: time.Hour,
	}, cannedProvider(95), BroadcasterFunc(func(snap Snapshot, alerts []Alert) {
		got <- alerts
	}), nil)

	m.Start()
	defer m.Stop()

	select {
	case alerts := <-got:
		if len(alerts) != 1 {
			t.Fatalf("Expected 1 alert, got %d", len(alerts))
		}
		if alerts[0].Resource != "cpu" || alerts[0].Percent != 95 {
			t.Errorf("Unexpected alert: %+v", alerts[0])
		}
	case <-time.After(time.Second):
		t.Fatal("No broadcast before deadline")
	}

	if snap, ok := m.Latest(); !ok || snap.CPUPercent != 95 {
		t.Errorf("Latest snapshot not recorded: ok=%v snap=%+v", ok, snap)
	}
}

func TestMonitor_ThrottlesQuietSamples(t *testing.T) {
	var broadcasts atomic.Int64
	m := NewMonitor(&Config{
		Interval:             5 * time.Millisecond,
		CPUAlertPercent:      90,
		BroadcastMinInterval: time.Hour,
	}, cannedProvider(10), BroadcasterFunc(func(snap Snapshot, alerts []Alert) {
		broadcasts.Add(1)
	}), nil)

	m.Start()
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	// Only the first quiet sample gets through; the rest are throttled.
	if n := broadcasts.Load(); n != 1 {
		t.Errorf("Expected 1 throttled broadcast, got %d", n)
	}
}

func TestMonitor_AlertsBypassThrottle(t *testing.T) {
	var broadcasts atomic.Int64
	m := NewMonitor(&Config{
		Interval:             5 * time.Millisecond,
		CPUAlertPercent:      90,
		BroadcastMinInterval: time.Hour,
	}, cannedProvider(99), BroadcasterFunc(func(snap Snapshot, alerts []Alert) {
		broadcasts.Add(1)
	}), nil)

	m.Start()
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	if n := broadcasts.Load(); n < 2 {
		t.Errorf("Alerted samples should always broadcast, got %d", n)
	}
}

func TestMonitor_NoThresholdNoAlert(t *testing.T) {
	m := NewMonitor(&Config{Interval: time.Second}, nil, nil, nil)

	alerts := m.checkAlerts(Snapshot{CPUPercent: 100, MemoryPercent: 100, DiskPercent: 100})
	if len(alerts) != 0 {
		t.Errorf("Zero thresholds should disable checks, got %d alerts", len(alerts))
	}
}
