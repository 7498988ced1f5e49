package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/statuspulse/statuspulse/internal/sysmon"
)

// ResponseGenerator produces a reply to a client chat message. The model
// backend implements this when reachable; the offline responder covers the
// rest of the time.
type ResponseGenerator interface {
	Generate(ctx context.Context, clientID, message string) (string, error)
}

// SnapshotSource supplies the latest system snapshot. *sysmon.Monitor
// satisfies it.
type SnapshotSource interface {
	Latest() (sysmon.Snapshot, bool)
}

// OfflineResponder answers from the latest cached system snapshot with canned
// phrasing. It never errors, so chat stays available while the model backend
// is unreachable.
type OfflineResponder struct {
	snapshots SnapshotSource
}

// NewOfflineResponder creates an offline responder. The source may be nil, in
// which case resource questions get the generic fallback.
func NewOfflineResponder(source SnapshotSource) *OfflineResponder {
	return &OfflineResponder{snapshots: source}
}

// Generate implements ResponseGenerator.
func (r *OfflineResponder) Generate(_ context.Context, _ string, message string) (string, error) {
	lower := strings.ToLower(message)

	var snap sysmon.Snapshot
	var ok bool
	if r.snapshots != nil {
		snap, ok = r.snapshots.Latest()
	}

	switch {
	case strings.Contains(lower, "cpu"):
		if ok {
			return fmt.Sprintf("CPU usage is currently %.1f%%.", snap.CPUPercent), nil
		}
	case strings.Contains(lower, "memory") || strings.Contains(lower, "ram"):
		if ok {
			return fmt.Sprintf("Memory usage is %.1f%% (%.0f MB of %.0f MB).",
				snap.MemoryPercent, snap.MemoryUsedMB, snap.MemoryTotalMB), nil
		}
	case strings.Contains(lower, "disk") || strings.Contains(lower, "storage"):
		if ok {
			return fmt.Sprintf("Disk usage is %.1f%% (%.1f GB of %.1f GB).",
				snap.DiskPercent, snap.DiskUsedGB, snap.DiskTotalGB), nil
		}
	case strings.Contains(lower, "status") || strings.Contains(lower, "health"):
		if ok {
			return fmt.Sprintf("System status: CPU %.1f%%, memory %.1f%%, disk %.1f%%.",
				snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent), nil
		}
	}

	return "I'm currently in offline mode with limited responses. " +
		"Ask about CPU, memory, disk or overall status.", nil
}
