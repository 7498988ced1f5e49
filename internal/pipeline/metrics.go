package pipeline

import (
	"sync"
	"time"
)

// latencyWindow is the number of recent completions the rolling average
// latency is computed over.
const latencyWindow = 100

// MetricsSnapshot is a point-in-time view of processing metrics.
type MetricsSnapshot struct {
	TotalMessages     int64   `json:"total_messages"`
	ProcessedMessages int64   `json:"processed_messages"`
	FailedMessages    int64   `json:"failed_messages"`
	TimeoutMessages   int64   `json:"timeout_messages"`
	SuccessRate       float64 `json:"success_rate"`
	AverageLatencyMS  float64 `json:"average_processing_time_ms"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	QueueSize         int     `json:"queue_size"`
	ActiveProcessors  int     `json:"active_processors"`
}

// processingMetrics tracks counters and a rolling latency window for the
// processor. All updates happen synchronously after each completion.
type processingMetrics struct {
	mu        sync.Mutex
	total     int64
	processed int64
	failed    int64
	timeouts  int64

	latencies []float64 // milliseconds, most recent last, capped at latencyWindow
	startTime time.Time
}

func newProcessingMetrics() *processingMetrics {
	return &processingMetrics{
		latencies: make([]float64, 0, latencyWindow),
		startTime: time.Now(),
	}
}

// record registers one terminal completion with its latency.
func (m *processingMetrics) record(status Status, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	switch status {
	case StatusCompleted:
		m.processed++
	case StatusFailed:
		m.failed++
	case StatusTimeout:
		m.timeouts++
	}

	m.latencies = append(m.latencies, float64(latency)/float64(time.Millisecond))
	if len(m.latencies) > latencyWindow {
		m.latencies = m.latencies[len(m.latencies)-latencyWindow:]
	}
}

// snapshot derives throughput and success rate from the raw counters.
func (m *processingMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalMessages:     m.total,
		ProcessedMessages: m.processed,
		FailedMessages:    m.failed,
		TimeoutMessages:   m.timeouts,
	}

	if m.total > 0 {
		snap.SuccessRate = float64(m.processed) / float64(m.total) * 100
	}

	if len(m.latencies) > 0 {
		var sum float64
		for _, l := range m.latencies {
			sum += l
		}
		snap.AverageLatencyMS = sum / float64(len(m.latencies))
	}

	if elapsed := time.Since(m.startTime).Minutes(); elapsed > 0 {
		snap.MessagesPerMinute = float64(m.total) / elapsed
	}

	return snap
}
