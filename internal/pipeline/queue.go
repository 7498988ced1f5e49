package pipeline

import (
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// rateWindow is the sliding window used for per-client rate limiting.
const rateWindow = time.Minute

// QueueConfig represents configuration for the priority message queue.
type QueueConfig struct {
	// MaxSize caps the total number of messages across all priority levels.
	MaxSize int

	// DefaultRateLimit applies to messages whose RateLimit field is zero.
	DefaultRateLimit int
}

// DefaultQueueConfig returns a default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxSize:          1000,
		DefaultRateLimit: 60,
	}
}

// PriorityQueue is a bounded multi-level FIFO queue with per-client rate
// limiting. Capacity and rate checks happen before priority is considered,
// so a full queue rejects urgent messages exactly like low-priority ones.
//
// A single mutex spans each logical operation; levels, the id lookup table
// and the rate-limit windows are never touched outside it.
type PriorityQueue struct {
	mu      sync.Mutex
	levels  map[Priority][]*QueuedMessage
	lookup  map[string]*QueuedMessage
	windows map[string][]time.Time // client_id -> submission timestamps

	maxSize          int
	defaultRateLimit int
	logger           log.Logger
}

// NewPriorityQueue creates a new priority message queue.
func NewPriorityQueue(config *QueueConfig, logger log.Logger) *PriorityQueue {
	if config == nil {
		config = DefaultQueueConfig()
	}
	if logger == nil {
		logger = log.Nop()
	}

	levels := make(map[Priority][]*QueuedMessage, len(priorityOrder))
	for _, p := range priorityOrder {
		levels[p] = nil
	}

	return &PriorityQueue{
		levels:           levels,
		lookup:           make(map[string]*QueuedMessage),
		windows:          make(map[string][]time.Time),
		maxSize:          config.MaxSize,
		defaultRateLimit: config.DefaultRateLimit,
		logger:           logger.With(log.String("component", "queue")),
	}
}

// Enqueue adds a message to its priority level. It returns false, dropping
// the message, when the queue is at capacity or the submitting client has
// exceeded its per-minute rate limit.
func (q *PriorityQueue) Enqueue(msg *QueuedMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.totalSizeLocked() >= q.maxSize {
		q.logger.Warn("Queue full, dropping message",
			log.String("message_id", msg.ID),
			log.Int("max_size", q.maxSize))
		return false
	}

	if !q.checkRateLimitLocked(msg.ClientID, msg.RateLimit) {
		q.logger.Warn("Rate limit exceeded for client",
			log.String("client_id", msg.ClientID),
			log.String("message_id", msg.ID))
		return false
	}

	q.levels[msg.Priority] = append(q.levels[msg.Priority], msg)
	q.lookup[msg.ID] = msg

	q.logger.Debug("Enqueued message",
		log.String("message_id", msg.ID),
		log.String("priority", msg.Priority.String()))
	return true
}

// Dequeue pops the head of the first non-empty priority level, scanning
// URGENT through LOW. It returns nil when every level is empty.
func (q *PriorityQueue) Dequeue() *QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range priorityOrder {
		level := q.levels[p]
		if len(level) == 0 {
			continue
		}
		msg := level[0]
		q.levels[p] = level[1:]
		return msg
	}
	return nil
}

// Remove deletes a message from its level and the lookup table. A message
// known to the lookup table but already drained from its level (for example
// one that is processing) is still removed successfully.
func (q *PriorityQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, exists := q.lookup[id]
	if !exists {
		return false
	}

	level := q.levels[msg.Priority]
	for i, m := range level {
		if m.ID == id {
			q.levels[msg.Priority] = append(level[:i], level[i+1:]...)
			break
		}
	}
	delete(q.lookup, id)
	return true
}

// Release drops a dequeued message's id from the lookup table once processing
// reaches a terminal status, freeing the id for reuse.
func (q *PriorityQueue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.lookup, id)
}

// Stats returns a snapshot of queue occupancy.
func (q *PriorityQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	byPriority := make(map[string]int, len(priorityOrder))
	for _, p := range priorityOrder {
		byPriority[p.String()] = len(q.levels[p])
	}

	return QueueStats{
		TotalSize:        q.totalSizeLocked(),
		ByPriority:       byPriority,
		MaxSize:          q.maxSize,
		RateLimitClients: len(q.windows),
	}
}

// totalSizeLocked sums all levels. Caller must hold q.mu.
func (q *PriorityQueue) totalSizeLocked() int {
	total := 0
	for _, level := range q.levels {
		total += len(level)
	}
	return total
}

// checkRateLimitLocked prunes the client's submission window and reports
// whether another submission fits under the limit, recording it if so.
// Caller must hold q.mu.
func (q *PriorityQueue) checkRateLimitLocked(clientID string, limit int) bool {
	if limit <= 0 {
		limit = q.defaultRateLimit
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)

	window := q.windows[clientID]
	pruned := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= limit {
		q.windows[clientID] = pruned
		return false
	}

	q.windows[clientID] = append(pruned, now)
	return true
}
