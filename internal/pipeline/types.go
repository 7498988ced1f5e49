package pipeline

import (
	"context"
	"time"
)

// Priority determines dequeue order. Higher values are drained first.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// priorityOrder lists priorities from most to least urgent, the order the
// queue is scanned at dequeue time.
var priorityOrder = []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "URGENT"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Status represents the processing state of a queued message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Handler is the unit of business logic registered against one message type.
// Replies and other side effects go through capabilities injected at
// registration time, not through the return value.
type Handler func(ctx context.Context, clientID string, data map[string]interface{}) error

// HandlerSpec describes a registered handler and its processing defaults.
// It is immutable after registration; re-registering a type replaces the
// whole spec.
type HandlerSpec struct {
	Type          string
	Handler       Handler
	Priority      Priority
	Timeout       time.Duration
	MaxConcurrent int
	RateLimit     int // messages per client per sliding minute
}

// Envelope is the inbound wire format consumed by Router.Submit.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	MessageID string                 `json:"message_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// QueuedMessage is a message in the processing queue. It is owned exclusively
// by the queue until dequeued, then by the processor until a terminal status
// is set; it is never mutated concurrently by two owners.
type QueuedMessage struct {
	ID         string
	ClientID   string
	Type       string
	Data       map[string]interface{}
	Priority   Priority
	EnqueuedAt time.Time
	Timeout    time.Duration
	MaxRetries int
	RetryCount int
	RateLimit  int

	Status    Status
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// QueueStats is a point-in-time snapshot of queue occupancy.
type QueueStats struct {
	TotalSize        int              `json:"total_size"`
	ByPriority       map[string]int   `json:"by_priority"`
	MaxSize          int              `json:"max_size"`
	RateLimitClients int              `json:"rate_limit_clients"`
}

// RouterStatus is the status surface exposed by Router.Status.
type RouterStatus struct {
	IsRunning          bool            `json:"is_running"`
	QueueStats         QueueStats      `json:"queue_stats"`
	ProcessingMetrics  MetricsSnapshot `json:"processing_metrics"`
	RegisteredHandlers []string        `json:"registered_handlers"`
	ActiveTasks        int             `json:"active_tasks"`
}
